package atoms

// anchorTable holds the precomputed reference anchors for every sub-feature,
// indexed [group][facet]. Each group reads the shared facet slots through its
// own vocabulary.
var anchorTable = [NumGroups][NumFacets][]string{
	GroupAffect: {
		FacetDistress:    {"sad", "hurt", "miserable", "heartbroken", "awful"},
		FacetWithdrawal:  {"numb", "empty", "don't feel anything"},
		FacetUncertainty: {"mixed feelings", "confused feeling", "don't know how i feel"},
		FacetConnection:  {"love", "warm", "grateful", "tender"},
		FacetResolve:     {"hopeful", "determined", "motivated"},
		FacetOverwhelm:   {"overwhelmed", "too much", "flooded"},
		FacetSteadiness:  {"calm", "content", "okay", "peaceful"},
	},
	GroupSomatic: {
		FacetDistress:    {"chest hurts", "pain", "sick", "ache"},
		FacetWithdrawal:  {"exhausted", "tired", "drained", "heavy body"},
		FacetUncertainty: {"dizzy", "foggy", "strange body"},
		FacetConnection:  {"hug", "held", "touch"},
		FacetResolve:     {"energy", "strong", "rested"},
		FacetOverwhelm:   {"can't breathe", "shaking", "heart racing", "panic"},
		FacetSteadiness:  {"breathing slowly", "relaxed", "grounded"},
	},
	GroupRelational: {
		FacetDistress:    {"fight", "betrayed", "rejected", "abandoned"},
		FacetWithdrawal:  {"alone", "lonely", "nobody", "isolated", "no one"},
		FacetUncertainty: {"don't know if they care", "mixed signals", "unsure about us"},
		FacetConnection:  {"friend", "family", "together", "close", "partner"},
		FacetResolve:     {"reach out", "talk to them", "make amends"},
		FacetOverwhelm:   {"everyone wants", "too many people", "pulled apart"},
		FacetSteadiness:  {"supported", "safe with", "trust"},
	},
	GroupCognitive: {
		FacetDistress:    {"can't stop thinking", "intrusive thoughts", "worst case"},
		FacetWithdrawal:  {"can't think", "blank", "shut down"},
		FacetUncertainty: {"confused", "don't know", "unsure", "doubt"},
		FacetConnection:  {"makes sense", "understand", "clicked"},
		FacetResolve:     {"figure out", "plan", "decide", "solution"},
		FacetOverwhelm:   {"racing thoughts", "spiraling", "overthinking"},
		FacetSteadiness:  {"clear headed", "focused", "clarity"},
	},
	GroupTemporal: {
		FacetDistress:    {"anniversary", "since it happened", "every day"},
		FacetWithdrawal:  {"stuck in the past", "nothing changes", "years ago"},
		FacetUncertainty: {"future", "what happens next", "someday"},
		FacetConnection:  {"remember when", "memories", "used to"},
		FacetResolve:     {"tomorrow", "next week", "starting now"},
		FacetOverwhelm:   {"right now", "immediately", "tonight", "running out of time"},
		FacetSteadiness:  {"one day at a time", "slowly", "patient"},
	},
	GroupIdentity: {
		FacetDistress:    {"worthless", "failure", "hate myself", "ashamed"},
		FacetWithdrawal:  {"don't belong", "invisible", "don't matter"},
		FacetUncertainty: {"who am i", "lost myself", "don't recognize myself"},
		FacetConnection:  {"one of us", "belong", "accepted"},
		FacetResolve:     {"proud", "capable", "i can"},
		FacetOverwhelm:   {"falling apart", "breaking down", "can't cope"},
		FacetSteadiness:  {"know myself", "comfortable", "self respect"},
	},
	GroupMeaning: {
		FacetDistress:    {"pointless", "meaningless", "why bother"},
		FacetWithdrawal:  {"gave up", "no reason", "lost purpose"},
		FacetUncertainty: {"what's the point", "questioning everything", "searching"},
		FacetConnection:  {"matters to me", "purpose", "faith"},
		FacetResolve:     {"worth it", "reason to", "believe"},
		FacetOverwhelm:   {"everything is ending", "world falling apart"},
		FacetSteadiness:  {"at peace", "accept", "meaningful"},
	},
	GroupVolition: {
		FacetDistress:    {"forced", "trapped", "no choice"},
		FacetWithdrawal:  {"can't get up", "no motivation", "don't want to do anything"},
		FacetUncertainty: {"should i", "torn", "can't decide"},
		FacetConnection:  {"do it together", "help me", "with support"},
		FacetResolve:     {"i will", "going to", "ready", "try"},
		FacetOverwhelm:   {"too many things", "can't keep up", "drowning in"},
		FacetSteadiness:  {"in control", "my choice", "routine"},
	},
	GroupThreat: {
		FacetDistress:    {"kill myself", "end it", "hurt myself", "suicide", "not safe", "danger"},
		FacetWithdrawal:  {"hiding", "avoid", "run away"},
		FacetUncertainty: {"something bad", "scared", "afraid", "worried"},
		FacetConnection:  {"protect", "someone watching over"},
		FacetResolve:     {"stay safe", "get help", "call someone"},
		FacetOverwhelm:   {"terrified", "emergency", "attack", "threatened"},
		FacetSteadiness:  {"safe", "secure", "protected"},
	},
	GroupRegulation: {
		FacetDistress:    {"can't calm down", "on edge", "agitated"},
		FacetWithdrawal:  {"shut down", "frozen", "checked out"},
		FacetUncertainty: {"up and down", "unstable", "all over the place"},
		FacetConnection:  {"co regulate", "calm with", "soothed"},
		FacetResolve:     {"trying to breathe", "coping", "managing"},
		FacetOverwhelm:   {"losing it", "out of control", "can't handle", "meltdown"},
		FacetSteadiness:  {"settled", "steady", "balanced", "calmer"},
	},
	GroupExpression: {
		FacetDistress:    {"screaming", "crying", "sobbing"},
		FacetWithdrawal:  {"can't say", "don't want to talk", "silent"},
		FacetUncertainty: {"hard to explain", "don't know how to say", "words"},
		FacetConnection:  {"tell you", "share", "listen"},
		FacetResolve:     {"want to say", "need to tell", "speak up"},
		FacetOverwhelm:   {"can't stop crying", "yelling", "ranting"},
		FacetSteadiness:  {"said it", "expressed", "writing"},
	},
}

// Anchors returns the anchors registered for group g and facet f.
func Anchors(g GroupID, f Facet) []string {
	if !g.Valid() || !f.Valid() {
		return nil
	}
	return anchorTable[g][f]
}
