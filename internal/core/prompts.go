package core

// prompts.go defines the prompts sent to the language model and the fixed
// texts shown to the pet owner.  Keeping them in one file makes them easy to
// tweak without touching the rest of the code.

const (
	// ExtractionPrompt turns one question/answer pair into a case delta.
	ExtractionPrompt = `You are a veterinary triage assistant. Your job is to extract structured information from a pet owner's answer.
Given the last question asked, the owner's answer and, when present, a description of the information the question was after, return a single JSON object.

Rules:
- Key symptoms by a simple canonical snake_case name (vomiting, lethargy, coughing).
- A symptom is true if confirmed present, false if explicitly denied, null if uncertain.
- Details of a symptom go in an object: {"vomiting": {"present": true, "frequency": "daily"}}.
- Patient facts (species, breed, age, sex, weight) go under "attributes": {"attributes": {"species": "dog", "age": "3 years"}}.
- A denied attribute value is written as {"not": value}: "it's not a cat" -> {"attributes": {"species": {"not": "cat"}}}.
- When the context names a slot or attribute, a short answer is the value for it: context {"type": "slot", "parent_symptom": "VOMITING", "slot": "FREQUENCY"}, answer "every day" -> {"vomiting": {"present": true, "frequency": "every day"}}.
- Do not guess or infer anything the owner did not say.
- If the answer is a single word that names a symptom, treat it as confirmed.
- Return {} when the answer contains nothing relevant.`

	// QuestionPrompt asks for exactly one follow-up question.
	QuestionPrompt = `You are a veterinary triage assistant. Write one natural, clear follow-up question for a pet owner.
You are given the case so far and the single piece of information that is missing.

Rules:
- Ask about the missing information only, and reference the relevant symptom.
- For slots ask about that detail (frequency, location, severity, ...).
- For attributes ask about the pet (species, age, ...).
- Never ask about something already known.
- Reply with the question text only.`

	// OraclePrompt asks whether an answer means the same as a set of values.
	OraclePrompt = `You compare a pet owner's answer with a list of reference values.
Reply "yes" if the answer means the same thing as at least one reference value, otherwise reply "no".
Reply with the single word yes or no.`

	// OpeningQuestion starts every session.
	OpeningQuestion = "Hi! What symptoms is your pet showing today?"

	// NoViableRuleMessage is the reply when every rule has been ruled out.
	NoViableRuleMessage = "Thanks, that helps. Nothing you described needs urgent care based on our guidelines. " +
		"Please book a routine appointment, and contact a clinic straight away if things get worse."

	// NeedDetailMessage is used when the engine cannot name the missing detail.
	NeedDetailMessage = "Could you tell me a bit more about what you have noticed?"

	// CapMessage ends a session that reached its turn limit without a
	// recommendation.
	CapMessage = "We have reached the question limit for this conversation. Thank you for the details. " +
		"Please book a routine appointment with your vet, and contact a clinic straight away if things get worse."

	// FallbackMessage is the reply when a turn cannot be processed at all.
	FallbackMessage = "Sorry, I could not process that. If your pet seems unwell, please contact your vet for a routine consultation."

	// recommendationFormat renders a matched rule: priority, then rationale.
	recommendationFormat = "Triage priority: %s.\n%s"
)
