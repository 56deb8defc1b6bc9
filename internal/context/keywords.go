package contextengine

// Word and marker sets grounded on the upstream context engine's own
// Portuguese keyword lists.

var stopwords = map[string]bool{
	"a": true, "o": true, "as": true, "os": true, "de": true, "da": true,
	"do": true, "das": true, "dos": true, "um": true, "uma": true,
	"uns": true, "umas": true, "em": true, "no": true, "na": true,
	"nos": true, "nas": true, "para": true, "por": true, "com": true,
	"que": true, "e": true, "ou": true, "se": true, "como": true,
	"mas": true, "eu": true, "voce": true, "ele": true, "ela": true,
	"nos ": true, "eles": true, "elas": true, "meu": true, "minha": true,
	"seu": true, "sua": true, "este": true, "esta": true, "isso": true,
	"aquele": true, "aquela": true, "ja": true, "tambem": true,
	"muito": true, "mais": true, "menos": true, "ai": true, "entao": true,
}

var positiveMarkers = []string{
	"obrigado", "obrigada", "otimo", "ótimo", "excelente", "adorei",
	"perfeito", "maravilhoso", "gostei", "top", "show", "bacana", "😀",
	"😃", "😄", "😊", "👍", "❤", "🙏",
}

var negativeMarkers = []string{
	"pessimo", "péssimo", "horrivel", "horrível", "terrivel", "terrível",
	"ruim", "detestei", "odiei", "insuportavel", "insuportável",
	"nunca mais", "cancelar", "reclamação", "reclamacao", "😡", "😠",
	"👎", "😞", "😢",
}

var greetingWords = []string{
	"oi", "ola", "olá", "bom dia", "boa tarde", "boa noite", "eai", "e ai",
	"salve",
}

var closingWords = []string{
	"tchau", "ate mais", "até mais", "ate logo", "até logo", "obrigado por tudo",
	"valeu", "falou", "ate breve", "até breve",
}

var urgencyWords = []string{
	"urgente", "emergencia", "emergência", "agora", "imediato",
	"imediatamente", "rapido", "rápido", "socorro",
}

var acknowledgementWords = map[string]bool{
	"sim": true, "ok": true, "claro": true, "beleza": true, "manda": true,
}

// questionWords are interrogative markers that flag a doubt even when
// the message carries no literal "?".
var questionWords = map[string]bool{
	"como": true, "quando": true, "onde": true, "qual": true, "quais": true,
	"pode": true,
}

// confirmationWords are exact-match replies that only count as a
// confirmation when they answer a previous user turn.
var confirmationWords = map[string]bool{
	"sim": true, "isso": true, "certo": true,
}

var feedbackWords = []string{
	"avaliar", "avaliação", "avaliacao", "nota", "feedback", "pesquisa",
}
