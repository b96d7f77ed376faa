package feed

// RecordsTopic carries DBN records for dataset.
func RecordsTopic(dataset string) string { return dataset + ".records" }

// ErrorsTopic carries gateway error messages for dataset.
func ErrorsTopic(dataset string) string { return dataset + ".errors" }

// ControlTopic receives subscription requests for dataset.
func ControlTopic(dataset string) string { return dataset + ".control" }
