// Package router classifies user queries into intent categories and routes
// them to knowledge collections.
//
// Classification is a pure function over the lowercased, trimmed message:
// identical input always produces identical output.
package router

import (
	"strings"
)

// Category is the closed intent set.
type Category string

const (
	CategoryGreeting          Category = "greeting"
	CategoryIdentity          Category = "identity"
	CategoryTeamQuery         Category = "team_query"
	CategorySessionState      Category = "session_state"
	CategoryCasual            Category = "casual"
	CategoryEmotional         Category = "emotional"
	CategoryBusinessSimple    Category = "business_simple"
	CategoryBusinessComplex   Category = "business_complex"
	CategoryBusinessStrategic Category = "business_strategic"
	CategoryDevCode           Category = "dev_code"
	CategoryUnknown           Category = "unknown"
)

// ModelTier suggests which LLM tier handles the query.
type ModelTier string

const (
	TierFast      ModelTier = "fast"
	TierPro       ModelTier = "pro"
	TierDeepThink ModelTier = "deep_think"
	TierDev       ModelTier = "dev"
)

// Mode is the communication-mode label used for prompt assembly.
type Mode string

const (
	ModeGreeting         Mode = "greeting"
	ModeSmallTalk        Mode = "small_talk"
	ModeIdentityResponse Mode = "identity_response"
	ModeTechnical        Mode = "technical"
	ModeProcedureGuide   Mode = "procedure_guide"
	ModeRiskExplainer    Mode = "risk_explainer"
	ModeLegalDeep        Mode = "legal_deep"
	ModeLegalBrief       Mode = "legal_brief"
)

// Intent is the classification result.
type Intent struct {
	Category            Category
	Confidence          float64
	SuggestedModelTier  ModelTier
	RequireMemory       bool
	RequiresTeamContext bool
	RAGCollection       string
	Mode                Mode
}

// Keyword sets, checked in decision order.
var (
	exactGreetings = map[string]bool{
		"hi": true, "hello": true, "hey": true, "halo": true, "hai": true,
		"ciao": true, "good morning": true, "good afternoon": true,
		"good evening": true, "selamat pagi": true, "selamat siang": true,
		"selamat sore": true, "selamat malam": true, "buongiorno": true,
		"buonasera": true, "yo": true, "hola": true,
	}

	identityKeywords = []string{
		"who are you", "what are you", "your name", "siapa kamu",
		"siapa anda", "chi sei", "what can you do", "apa yang bisa kamu",
	}

	teamQueryKeywords = []string{
		"who is on the team", "team member", "my colleague", "our team",
		"tim kami", "siapa saja di tim", "who works",
	}

	sessionStateKeywords = []string{
		"what did we discuss", "previous conversation", "last time",
		"earlier you said", "chat history", "percakapan sebelumnya",
		"reset the conversation", "clear history", "start over",
	}

	emotionalKeywords = []string{
		"frustrated", "worried", "anxious", "stressed", "scared", "upset",
		"confused and lost", "khawatir", "takut", "bingung sekali",
	}

	casualKeywords = []string{
		"how are you", "apa kabar", "come stai", "thank you", "thanks",
		"terima kasih", "grazie", "lol", "haha", "nice", "cool",
	}

	deepThinkKeywords = []string{
		"strategy", "strategic", "restructure", "holding company",
		"tax optimization", "multi-year", "expansion plan", "exit strategy",
		"compare all options", "comprehensive analysis",
	}

	proKeywords = []string{
		"explain in detail", "step by step", "requirements for",
		"procedure", "what documents", "how do i register", "compliance",
		"implications", "penalty", "sanction",
	}

	businessKeywords = []string{
		"visa", "kitas", "kitap", "immigration", "imigrasi", "tax", "pajak",
		"npwp", "pt pma", "company", "perusahaan", "kbli", "oss", "nib",
		"license", "izin", "permit", "legal", "hukum", "notary", "notaris",
		"property", "tanah", "land", "lease", "bpjs", "payroll", "invoice",
		"price", "cost", "harga", "biaya", "fee",
	}

	devKeywords = []string{
		"code", "function", "api endpoint", "bug", "stack trace", "golang",
		"python", "javascript", "sql query", "regex", "deploy",
	}
)

// Classify maps a raw user message to an Intent.
func Classify(message string) *Intent {
	q := strings.ToLower(strings.TrimSpace(message))

	switch {
	case q == "" || exactGreetings[strings.TrimRight(q, "!.? ")]:
		return &Intent{
			Category:           CategoryGreeting,
			Confidence:         1.0,
			SuggestedModelTier: TierFast,
			Mode:               ModeGreeting,
		}

	case containsAny(q, identityKeywords):
		return &Intent{
			Category:           CategoryIdentity,
			Confidence:         0.95,
			SuggestedModelTier: TierFast,
			RequireMemory:      true,
			Mode:               ModeIdentityResponse,
		}

	case containsAny(q, teamQueryKeywords):
		return &Intent{
			Category:            CategoryTeamQuery,
			Confidence:          0.9,
			SuggestedModelTier:  TierFast,
			RequireMemory:       true,
			RequiresTeamContext: true,
			Mode:                ModeIdentityResponse,
		}

	case containsAny(q, sessionStateKeywords):
		return &Intent{
			Category:           CategorySessionState,
			Confidence:         0.9,
			SuggestedModelTier: TierFast,
			RequireMemory:      true,
			Mode:               ModeSmallTalk,
		}

	case containsAny(q, emotionalKeywords):
		return &Intent{
			Category:           CategoryEmotional,
			Confidence:         0.8,
			SuggestedModelTier: TierFast,
			RequireMemory:      true,
			Mode:               ModeSmallTalk,
		}

	case containsAny(q, casualKeywords) && !containsAny(q, businessKeywords):
		return &Intent{
			Category:           CategoryCasual,
			Confidence:         0.8,
			SuggestedModelTier: TierFast,
			Mode:               ModeSmallTalk,
		}

	case containsAny(q, businessKeywords):
		return classifyBusiness(q)

	case containsAny(q, devKeywords):
		return &Intent{
			Category:           CategoryDevCode,
			Confidence:         0.85,
			SuggestedModelTier: TierDev,
			Mode:               ModeTechnical,
		}

	case len(q) < 25:
		return &Intent{
			Category:           CategoryCasual,
			Confidence:         0.5,
			SuggestedModelTier: TierFast,
			Mode:               ModeSmallTalk,
		}

	default:
		return &Intent{
			Category:           CategoryBusinessSimple,
			Confidence:         0.4,
			SuggestedModelTier: TierFast,
			Mode:               ModeProcedureGuide,
		}
	}
}

// classifyBusiness sub-classifies business queries by complexity signals.
func classifyBusiness(q string) *Intent {
	switch {
	case containsAny(q, deepThinkKeywords):
		return &Intent{
			Category:           CategoryBusinessStrategic,
			Confidence:         0.85,
			SuggestedModelTier: TierDeepThink,
			RequireMemory:      true,
			Mode:               ModeLegalDeep,
		}
	case containsAny(q, proKeywords) || len(q) > 200:
		return &Intent{
			Category:           CategoryBusinessComplex,
			Confidence:         0.8,
			SuggestedModelTier: TierPro,
			RequireMemory:      true,
			Mode:               ModeProcedureGuide,
		}
	default:
		return &Intent{
			Category:           CategoryBusinessSimple,
			Confidence:         0.75,
			SuggestedModelTier: TierFast,
			Mode:               ModeLegalBrief,
		}
	}
}

func containsAny(q string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}
