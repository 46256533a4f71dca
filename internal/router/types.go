package router

// Stats contains runtime statistics.
type Stats struct {
	MessagesReceived int64 `json:"messagesReceived"`
	MessagesRouted   int64 `json:"messagesRouted"`
	ParseErrors      int64 `json:"parseErrors"`
	UnknownMessages  int64 `json:"unknownMessages"`
	Unauthenticated  int64 `json:"unauthenticated"` // Frames discarded before auth
	AuthSuccesses    int64 `json:"authSuccesses"`
	AuthFailures     int64 `json:"authFailures"`
	Deliveries       int64 `json:"deliveries"`
	DeliveryFailures int64 `json:"deliveryFailures"`
}
