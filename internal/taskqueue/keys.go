package taskqueue

// Redis key construction is centralized here so the layout never leaks into
// callers. Queue names are wrapped in hash tags to keep every structure of a
// queue on one cluster slot.

type queueKeys struct {
	pending   string
	started   string
	retried   string
	succeeded string
	failed    string
}

func keysFor(queue string) queueKeys {
	prefix := "inkwell:{" + queue + "}:"
	return queueKeys{
		pending:   prefix + "pending",
		started:   prefix + "started",
		retried:   prefix + "retried",
		succeeded: prefix + "succeeded",
		failed:    prefix + "failed",
	}
}

func statusKey(taskID string) string {
	return "inkwell:task:" + taskID
}
