package netaio

import "fmt"

// MessageType identifies the purpose of a Message on the wire. Values
// 0-30 are reserved by this package; extensions must use [31, 255].
type MessageType uint8

const (
	RequestURI         MessageType = 0
	RespondURI         MessageType = 1
	CreateURI          MessageType = 2
	UpdateURI          MessageType = 3
	DeleteURI          MessageType = 4
	SubscribeURI       MessageType = 5
	UnsubscribeURI     MessageType = 6
	PublishURI         MessageType = 7
	NotifyURI          MessageType = 8
	AdvertisePeer      MessageType = 9
	OK                 MessageType = 10
	ConfirmSubscribe   MessageType = 11
	ConfirmUnsubscribe MessageType = 12
	PeerDiscovered     MessageType = 13
	_reserved14        MessageType = 14
	_reserved15        MessageType = 15
	_reserved16        MessageType = 16
	_reserved17        MessageType = 17
	_reserved18        MessageType = 18
	_reserved19        MessageType = 19
	Error              MessageType = 20
	_reserved21        MessageType = 21
	_reserved22        MessageType = 22
	AuthError          MessageType = 23
	NotFound           MessageType = 24
	NotPermitted       MessageType = 25
	_reserved26        MessageType = 26
	_reserved27        MessageType = 27
	_reserved28        MessageType = 28
	_reserved29        MessageType = 29
	Disconnect         MessageType = 30
)

// reservedNames mirrors the constant block above so ValidateMessageTypes
// can check that a caller-supplied table didn't redefine or drop one of
// the reserved slots. Values left unassigned in the original protocol
// (14-19, 21, 22, 26-29) stay reserved: they must be absent from a
// custom table, not repurposed.
var reservedNames = map[MessageType]string{
	RequestURI:         "REQUEST_URI",
	RespondURI:         "RESPOND_URI",
	SubscribeURI:       "SUBSCRIBE_URI",
	UnsubscribeURI:     "UNSUBSCRIBE_URI",
	ConfirmSubscribe:   "CONFIRM_SUBSCRIBE",
	ConfirmUnsubscribe: "CONFIRM_UNSUBSCRIBE",
	PublishURI:         "PUBLISH_URI",
	NotifyURI:          "NOTIFY_URI",
	CreateURI:          "CREATE_URI",
	UpdateURI:          "UPDATE_URI",
	DeleteURI:          "DELETE_URI",
	OK:                 "OK",
	Error:              "ERROR",
	AuthError:          "AUTH_ERROR",
	NotFound:           "NOT_FOUND",
	NotPermitted:       "NOT_PERMITTED",
	AdvertisePeer:      "ADVERTISE_PEER",
	PeerDiscovered:     "PEER_DISCOVERED",
	Disconnect:         "DISCONNECT",
}

func (mt MessageType) String() string {
	if name, ok := reservedNames[mt]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", uint8(mt))
}

// ValidateMessageTypes checks a full name->value table supplied by a
// caller who wants to extend the enumeration. Every reserved name must
// be present and mapped to its original value, every reserved value
// must be used by its original name, and every extension value must
// fall in [31, 255].
func ValidateMessageTypes(table map[string]MessageType) error {
	for value, name := range reservedNames {
		got, ok := table[name]
		if !ok {
			return fmt.Errorf("%w: table missing reserved name %q", ErrInvalidMessageType, name)
		}
		if got != value {
			return fmt.Errorf("%w: table redefines reserved name %q to %d, want %d", ErrInvalidMessageType, name, got, value)
		}
	}
	for name, value := range table {
		if _, reserved := reservedNames[value]; reserved {
			if reservedNames[value] != name {
				return fmt.Errorf("%w: table assigns reserved value %d to %q, want %q", ErrInvalidMessageType, value, name, reservedNames[value])
			}
			continue
		}
		if value < 31 {
			return fmt.Errorf("%w: %q=%d falls in the reserved range [0,30]", ErrInvalidMessageType, name, value)
		}
	}
	return nil
}
