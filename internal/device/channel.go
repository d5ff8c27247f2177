package device

import (
	"fmt"
	"log"
	"time"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
)

// Handler processes one inbound message from the hardware.
type Handler func(msg Message)

// Channel is the duplex publish/subscribe transport between the core and
// the machine fleet. Publish sends to the hardware topic; Subscribe
// registers the handler for the server topic.
type Channel interface {
	Publish(msg Message) error
	Subscribe(handler Handler) error
	Close()
}

// mqttChannel implements Channel on top of an MQTT broker.
type mqttChannel struct {
	client  mqttlib.Client
	timeout time.Duration
}

// Options configure the MQTT connection.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
}

// NewChannel connects to the broker and returns a ready channel.
func NewChannel(opts Options) (Channel, error) {
	clientOpts := mqttlib.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqttlib.Client, err error) {
			log.Printf("MQTT connection lost: %v", err)
		})

	client := mqttlib.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	return &mqttChannel{client: client, timeout: 5 * time.Second}, nil
}

// Publish sends a message to the hardware topic at QoS 1.
func (c *mqttChannel) Publish(msg Message) error {
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	token := c.client.Publish(ToHardwareTopic, 1, false, data)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("mqtt publish timed out after %s", c.timeout)
	}
	return token.Error()
}

// Subscribe registers the handler for messages on the server topic.
// Undecodable payloads are logged and dropped; the transport guarantees
// nothing about malformed senders.
func (c *mqttChannel) Subscribe(handler Handler) error {
	token := c.client.Subscribe(ToServerTopic, 1, func(_ mqttlib.Client, raw mqttlib.Message) {
		msg, err := DecodeMessage(raw.Payload())
		if err != nil {
			log.Printf("dropping undecodable device message on %s: %v", raw.Topic(), err)
			return
		}
		handler(msg)
	})
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("mqtt subscribe timed out after %s", c.timeout)
	}
	return token.Error()
}

// Close disconnects from the broker, allowing in-flight work to finish.
func (c *mqttChannel) Close() {
	c.client.Disconnect(250)
}
