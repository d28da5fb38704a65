package analysis

const (
	DomainBiology         = "biology"
	DomainChemistry       = "chemistry"
	DomainComputerScience = "computer_science"
	DomainEconomics       = "economics"
	DomainGeography       = "geography"
	DomainHistory         = "history"
	DomainLanguage        = "language"
	DomainLaw             = "law"
	DomainMathematics     = "mathematics"
	DomainMedicine        = "medicine"
	DomainMusic           = "music"
	DomainPhysics         = "physics"

	DomainUnknown = "unknown"
)

// domainKeywords lists the evidence terms per domain. Longer keywords weigh
// more because a domain's score adds keyword length for every occurrence.
var domainKeywords = map[string][]string{
	DomainBiology: {
		"cell", "cells", "organism", "species", "gene", "genes", "dna", "rna",
		"protein", "enzyme", "mitosis", "meiosis", "photosynthesis", "evolution",
		"ecosystem", "bacteria", "mitochondria", "chromosome", "membrane", "tissue",
		"nucleus", "taxonomy", "habitat",
	},
	DomainChemistry: {
		"atom", "atoms", "molecule", "molecules", "element", "compound", "reaction",
		"acid", "base", "ph", "bond", "covalent", "ionic", "electron", "oxidation",
		"reduction", "catalyst", "periodic table", "isotope", "solution", "mole",
		"titration", "organic",
	},
	DomainComputerScience: {
		"algorithm", "function", "variable", "compiler", "database", "software",
		"program", "programming", "array", "pointer", "recursion", "complexity",
		"binary", "loop", "class", "object", "network", "protocol", "cpu", "memory",
		"thread", "api", "sql", "hash", "stack", "queue",
	},
	DomainEconomics: {
		"market", "demand", "supply", "price", "inflation", "gdp", "economy",
		"interest rate", "monetary", "fiscal", "trade", "tariff", "stock",
		"investment", "recession", "unemployment", "elasticity", "equilibrium",
		"revenue", "profit",
	},
	DomainGeography: {
		"capital", "country", "continent", "river", "mountain", "ocean", "desert",
		"climate", "population", "border", "latitude", "longitude", "island",
		"peninsula", "city", "region", "lake", "volcano", "equator",
	},
	DomainHistory: {
		"war", "empire", "king", "queen", "revolution", "century", "dynasty",
		"treaty", "battle", "ancient", "medieval", "colony", "independence",
		"president", "civilization", "monarchy", "republic", "reign", "invasion",
	},
	DomainLanguage: {
		"verb", "noun", "adjective", "adverb", "grammar", "tense", "conjugation",
		"pronunciation", "vocabulary", "translate", "translation", "plural",
		"singular", "sentence", "syllable", "phrase", "idiom", "synonym", "antonym",
	},
	DomainLaw: {
		"law", "court", "statute", "contract", "tort", "plaintiff", "defendant",
		"liability", "constitution", "jurisdiction", "precedent", "judge", "legal",
		"verdict", "appeal", "negligence", "crime", "evidence",
	},
	DomainMathematics: {
		"equation", "integral", "derivative", "matrix", "vector", "theorem",
		"proof", "prime", "polynomial", "fraction", "algebra", "geometry",
		"calculus", "probability", "logarithm", "triangle", "angle", "sum",
		"product", "limit", "function", "graph",
	},
	DomainMedicine: {
		"disease", "symptom", "symptoms", "diagnosis", "treatment", "patient",
		"drug", "dose", "infection", "virus", "syndrome", "therapy", "surgery",
		"anatomy", "artery", "vein", "heart", "blood", "clinical", "chronic",
		"acute", "pathology", "pharmacology",
	},
	DomainMusic: {
		"note", "chord", "scale", "melody", "harmony", "rhythm", "tempo", "key",
		"octave", "composer", "symphony", "sonata", "interval", "major", "minor",
		"piano", "violin", "orchestra", "tone",
	},
	DomainPhysics: {
		"force", "energy", "mass", "velocity", "acceleration", "momentum", "gravity",
		"quantum", "relativity", "wave", "frequency", "electric", "magnetic",
		"thermodynamics", "newton", "photon", "particle", "friction", "joule",
		"voltage",
	},
}

// stopwords are dropped before concept extraction.
var stopwords = toSet([]string{
	"a", "about", "above", "after", "again", "against", "all", "also", "am", "an",
	"and", "any", "are", "as", "at", "be", "because", "been", "before", "being",
	"below", "between", "both", "but", "by", "can", "could", "did", "do", "does",
	"doing", "down", "during", "each", "few", "for", "from", "further", "had",
	"has", "have", "having", "he", "her", "here", "hers", "him", "his", "how",
	"i", "if", "in", "into", "is", "it", "its", "itself", "just", "me", "more",
	"most", "my", "no", "nor", "not", "now", "of", "off", "on", "once", "only",
	"or", "other", "our", "ours", "out", "over", "own", "same", "she", "should",
	"so", "some", "such", "than", "that", "the", "their", "theirs", "them",
	"then", "there", "these", "they", "this", "those", "through", "to", "too",
	"under", "until", "up", "very", "was", "we", "were", "what", "when", "where",
	"which", "while", "who", "whom", "whose", "why", "will", "with", "would",
	"you", "your", "yours", "called", "known", "used", "using", "one", "two",
})

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
