// Package gatewaytools implements GatewayToolExecutor (spec §4.8):
// validated, role-gated dispatch of the closed tool catalog, grounded on
// goclaw's internal/tools/result.go Result shape and internal/tools/
// policy.go role-matching pipeline.
package gatewaytools

// Result is the structured {success, error|message} contract every tool
// returns instead of throwing, except for UNKNOWN_TOOL (spec §4.8/§7).
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

func ok(data map[string]interface{}) Result {
	return Result{Success: true, Data: data}
}

func failMessage(msg string) Result {
	return Result{Success: false, Message: msg}
}

func failError(msg string) Result {
	return Result{Success: false, Error: msg}
}
