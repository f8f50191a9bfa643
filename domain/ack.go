package domain

type AckStatus string

const (
	AckSuccess AckStatus = "success"
	AckError   AckStatus = "error"
)

// Ack is the structured answer to a send request.
// Message is set on success; Error and Code on failure.
type Ack struct {
	Status  AckStatus `json:"status"`
	Message *Message  `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
	Code    string    `json:"code,omitempty"`
}

func SuccessAck(m Message) Ack {
	return Ack{Status: AckSuccess, Message: &m}
}

func ErrorAck(code string, err error) Ack {
	return Ack{Status: AckError, Error: err.Error(), Code: code}
}

func (a Ack) Succeeded() bool {
	return a.Status == AckSuccess && a.Message != nil
}
