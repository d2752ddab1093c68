package httpdto

// Response is the uniform envelope every portal endpoint returns. Data is
// set on success; Error and Code describe the failure otherwise.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse builds a failure envelope. Code is the machine-readable
// discriminator the portal UI branches on (NOT_ASSIGNED, VALIDATION_FAILED,
// UNAUTHORIZED, ...); Error is the human-readable detail.
func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
		Code:    code,
	}
}
