package mqtt

import (
	"fmt"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/levenlabs/go-lflag"
)

// Configured registers the MQTT flags. The returned Publisher connects once
// flags are parsed and stays disabled when no broker is set.
func Configured() *Publisher {
	broker := lflag.String("mqtt-broker", "", "MQTT broker URL (e.g. tcp://localhost:1883), empty disables rate publishing")
	username := lflag.String("mqtt-username", "", "MQTT username")
	password := lflag.String("mqtt-password", "", "MQTT password")
	clientID := lflag.String("mqtt-client-id", "tourate", "MQTT client ID")
	topicPrefix := lflag.String("mqtt-topic-prefix", "tourate/rates", "Topic prefix, the lowercased category is appended")
	timeout := lflag.Duration("mqtt-timeout", 5*time.Second, "Timeout for connecting and publishing")

	p := &Publisher{}

	lflag.Do(func() {
		if *broker == "" {
			return
		}
		opts := paho_mqtt.NewClientOptions().
			AddBroker(*broker).
			SetUsername(*username).
			SetPassword(*password).
			SetClientID(*clientID).
			SetAutoReconnect(true)
		c := paho_mqtt.NewClient(opts)
		token := c.Connect()
		if !token.WaitTimeout(*timeout) {
			panic(fmt.Sprintf("mqtt connect to %s timed out", *broker))
		}
		if err := token.Error(); err != nil {
			panic(fmt.Sprintf("mqtt connect to %s failed: %v", *broker, err))
		}
		*p = *NewPublisher(c, *topicPrefix, *timeout)
	})

	return p
}
