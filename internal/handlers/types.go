package handlers

// MotionRequest is one accelerometer sample in g
type MotionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// SelectRequest picks one of several detected codes
type SelectRequest struct {
	ID string `json:"id" binding:"required"`
}

// TransferRequest confirms a transfer to the validated alias
type TransferRequest struct {
	Amount   float64 `json:"amount" binding:"required"`
	Category string  `json:"category"`
	PIN      string  `json:"pin" binding:"required"`
}
