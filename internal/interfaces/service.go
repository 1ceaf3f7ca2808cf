package interfaces

// Service interface defines the methods that every kind of interface exposed
// by the daemon, whether REST, websocket, or whatever, must be compliant with.
type Service interface {
	Start() error
	Stop()
}
