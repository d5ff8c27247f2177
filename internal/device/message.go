package device

import "encoding/json"

// MQTT topics shared with the machine firmware.
const (
	ToServerTopic   = "laundry/system/server"
	ToHardwareTopic = "laundry/system/hardware"
)

// MessageType identifies the kind of message in a channel envelope.
type MessageType string

const (
	TypeAddMachine          MessageType = "ADD_MACHINE"
	TypeRemoveMachine       MessageType = "REMOVE_MACHINE"
	TypeUpdateMachineStatus MessageType = "UPDATE_MACHINE_STATUS"
	TypePowerConsumption    MessageType = "POWER_CONSUMPTION_UPDATE"
	TypeSendAuthCode        MessageType = "SEND_AUTHENTICATION_CODE"
)

// Message is the logical envelope carried on the channel in both directions.
type Message struct {
	Type    MessageType    `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Encode serializes the message for the wire.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a wire payload into a Message.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(data, &m)
	return m, err
}

// MachineID extracts the machine id from the payload, if present.
func (m Message) MachineID() string {
	id, _ := m.Payload["id"].(string)
	return id
}

// String extracts a string payload field.
func (m Message) String(key string) string {
	v, _ := m.Payload[key].(string)
	return v
}

// Float extracts a numeric payload field. JSON numbers decode as float64.
func (m Message) Float(key string) (float64, bool) {
	v, ok := m.Payload[key].(float64)
	return v, ok
}

// SuccessAck builds the acknowledgment published back to the hardware after
// a request was applied.
func SuccessAck(t MessageType, machineID string) Message {
	return Message{
		Type:    t,
		Payload: map[string]any{"status": "success", "id": machineID},
	}
}

// ErrorAck builds the failure acknowledgment. The device is expected to
// resend its report; the core never retries on its own.
func ErrorAck(t MessageType, machineID, message string) Message {
	return Message{
		Type:    t,
		Payload: map[string]any{"status": "error", "id": machineID, "message": message},
	}
}

// AuthCodeMessage builds the one-way auth-code dispatch sent at order creation.
func AuthCodeMessage(machineID, code string) Message {
	return Message{
		Type:    TypeSendAuthCode,
		Payload: map[string]any{"id": machineID, "code": code},
	}
}
