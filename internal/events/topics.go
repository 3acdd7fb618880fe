package events

// TopicSubmissionRecorded is emitted after a submission row was appended to the ledger.
const TopicSubmissionRecorded = "submission.recorded"

// DefaultTopics returns the topics emitted by the simulator.
func DefaultTopics() []string {
	return []string{TopicSubmissionRecorded}
}
