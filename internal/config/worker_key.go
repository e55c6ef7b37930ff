package config

type WorkerKeyStruct struct {
	PersistAttemptsQueue    string
	PersistAnswersQueue     string
	PersistInfractionsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAttemptsQueue:    "persist_attempts_queue",
	PersistAnswersQueue:     "persist_answers_queue",
	PersistInfractionsQueue: "persist_infractions_queue",
}
