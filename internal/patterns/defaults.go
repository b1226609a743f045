package patterns

// DefaultContextWindow is the number of characters of context kept on each side of a hit.
const DefaultContextWindow = 300

// DefaultDefinitions returns the built-in pattern definitions.
func DefaultDefinitions() []Definition {
	return []Definition{
		// Strong: explicit hidden prize language.
		{ID: "read_this_far", Tier: TierStrong, Weight: 0.8,
			Expr: `(?i)if\s+you['\x{2019}]?ve?\s+read\s+this\s+far`},
		{ID: "first_person_to", Tier: TierStrong, Weight: 0.7,
			Expr: `(?i)first\s+person\s+to\s+(read|find|notice|discover|email|contact|call|respond)`},
		{ID: "hidden_reward", Tier: TierStrong, Weight: 0.7,
			Expr: `(?i)hidden\s+(prize|reward|contest|message|bonus|easter\s+egg|offer)`},
		{ID: "congratulations_found", Tier: TierStrong, Weight: 0.8,
			Expr: `(?i)congratulations.*?you\s+(found|discovered|are\s+one\s+of|actually\s+read)`},
		{ID: "claim_instruction", Tier: TierStrong, Weight: 0.7,
			Expr: `(?i)(email|call|contact|write)\s+(us|to)\s+.{0,80}(to\s+)?(claim|win|receive|collect|get)\s+.{0,30}(prize|reward|gift|bonus|money|card)`},
		{ID: "email_to_win", Tier: TierStrong, Weight: 0.8,
			Expr: `(?i)email\s+us\s+at\s+\S+@\S+.{0,100}(prize|reward|win|gift|bonus)`},
		{ID: "dollar_prize", Tier: TierStrong, Weight: 0.7,
			Expr: `(?i)\$\s?\d{1,3}(?:,\d{3})*(?:\.\d{2})?\s*(prize|reward|gift\s*card|bonus|cash\s*prize)`},
		{ID: "few_who_read", Tier: TierStrong, Weight: 0.8,
			Expr: `(?i)(one\s+of\s+the\s+(very\s+)?few|rare\s+person|actually\s+read(s|ing)?)\s+.{0,50}(terms|policy|agreement|contract|fine\s+print|document)`},

		// Medium: contest vocabulary.
		{ID: "contest_words", Tier: TierMedium, Weight: 0.3,
			Expr: `(?i)\b(sweepstakes|giveaway|raffle|drawing|jackpot)\b`},
		{ID: "winner_language", Tier: TierMedium, Weight: 0.3,
			Expr: `(?i)(you\s+(could\s+)?win|winner\s+will\s+(be\s+)?(selected|chosen|notified)|eligible\s+to\s+win|chance\s+to\s+win)`},
		{ID: "reward_mention", Tier: TierMedium, Weight: 0.2,
			Expr: `(?i)\b(prize|reward|bonus|gift\s*card|free\s+(product|service|subscription|item))\b`},

		// Weak: supporting signals.
		{ID: "easter_egg_mention", Tier: TierWeak, Weight: 0.1,
			Expr: `(?i)\b(easter\s+egg|secret\s+message|buried\s+in)\b`},
		{ID: "urgency_scarcity", Tier: TierWeak, Weight: 0.1,
			Expr: `(?i)(limited\s+(time|offer)|act\s+(now|fast|quickly)|first\s+\d+\s+(people|readers|customers))`},

		// Negative: ordinary promotional boilerplate.
		{ID: "official_rules", Tier: TierNegative, Weight: -0.4,
			Expr: `(?i)(official\s+rules|no\s+purchase\s+necessary|void\s+where\s+prohibited)`},
		{ID: "sweepstakes_terms", Tier: TierNegative, Weight: -0.3,
			Expr: `(?i)(sweepstakes\s+(rules|terms|conditions)|contest\s+rules|odds\s+of\s+winning|eligibility\s+requirements)`},
		{ID: "legal_boilerplate", Tier: TierNegative, Weight: -0.3,
			Expr: `(?i)(this\s+promotion\s+is\s+sponsored\s+by|by\s+entering.*?you\s+agree\s+to|open\s+to\s+(legal\s+)?residents)`},
	}
}

var defaultSet = MustNew(DefaultDefinitions())

// Default returns the built-in pattern set.
func Default() *Set {
	return defaultSet
}
