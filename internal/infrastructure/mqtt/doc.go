// Package mqtt provides MQTT client connectivity for the thermostat bridge.
//
// The bridge needs three things from the broker: retained publishes for the
// Homie tree, one wildcard subscription covering every settable property's
// /set topic, and a Last Will that flips $state to "lost". The client does
// exactly that and keeps the command route alive across reconnects.
//
// # Architecture
//
// The Homie device (internal/homie) owns the topic layout and passes the
// command filter in; this package only checks that it ends in /set.
//
//	Thermostat ↔ Bridge ↔ Homie device ↔ mqtt.Client ↔ Broker ↔ Controllers
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Credentials come from config or RADIOTHERM_MQTT_USERNAME/PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, &mqtt.Will{
//	    Topic: "homie/thermostat/$state", Payload: []byte("lost"), QoS: 1, Retained: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.SubscribeCommands("homie/thermostat/+/+/set", 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload) // errors are logged as rejected commands
//	    })
package mqtt
