package survey

import (
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"

	mqttConnectTimeout = 10 * time.Second
	mqttMaxBackoff     = time.Minute
)

// MQTTClient owns the broker connection events are published on. The broker
// learns about this process through a retained {prefix}/availability topic:
// "online" after each connect, "offline" on Disconnect or as the last will.
type MQTTClient struct {
	client       mqtt.Client
	availability string

	mu        sync.RWMutex
	connected bool
	hooks     []func()

	stop     chan struct{}
	stopOnce sync.Once
}

// InitMQTT starts connecting to the configured broker in the background.
// It returns nil when no broker is configured.
func InitMQTT(config MQTTConfig) *MQTTClient {
	if config.Broker == "" {
		log.Println("MQTT disabled: no broker configured")
		return nil
	}

	c := newMQTTClient(nil, config.PublishPrefix)
	c.client = mqtt.NewClient(c.options(config))

	log.Printf("MQTT publishing to %s as %s", config.Broker, c.availability)
	go c.connectWithRetry()
	return c
}

func newMQTTClient(client mqtt.Client, prefix string) *MQTTClient {
	if prefix == "" {
		prefix = "wifisurvey"
	}
	return &MQTTClient{
		client:       client,
		availability: prefix + "/availability",
		stop:         make(chan struct{}),
	}
}

func (c *MQTTClient) options(config MQTTConfig) *mqtt.ClientOptions {
	clientID := config.ClientID
	if clientID == "" {
		clientID = "wifisurvey"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(config.Broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(mqttMaxBackoff).
		SetKeepAlive(30 * time.Second).
		SetWill(c.availability, availabilityOffline, 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	return opts
}

// connectWithRetry blocks until the first connect succeeds or Disconnect is
// called. Later drops are handled by paho's auto-reconnect.
func (c *MQTTClient) connectWithRetry() {
	backoff := time.Second
	for {
		token := c.client.Connect()
		switch {
		case !token.WaitTimeout(mqttConnectTimeout):
			log.Printf("MQTT connect timed out after %v", mqttConnectTimeout)
		case token.Error() != nil:
			log.Printf("MQTT connect failed: %v", token.Error())
		default:
			c.setConnected(true)
			return
		}

		log.Printf("MQTT retry in %v", backoff)
		select {
		case <-c.stop:
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, mqttMaxBackoff)
	}
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)
	log.Println("MQTT connected")
	c.announce(client, availabilityOnline)

	c.mu.RLock()
	hooks := append([]func(){}, c.hooks...)
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

// OnConnect registers fn to run after every (re)connect
func (c *MQTTClient) OnConnect(fn func()) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

func (c *MQTTClient) onConnectionLost(_ mqtt.Client, err error) {
	c.setConnected(false)
	log.Printf("MQTT connection lost (%v), reconnecting", err)
}

// announce publishes the retained availability state
func (c *MQTTClient) announce(client mqtt.Client, state string) {
	token := client.Publish(c.availability, 1, true, state)
	if !token.WaitTimeout(2 * time.Second) {
		log.Printf("MQTT availability %q not acknowledged", state)
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("MQTT availability %q failed: %v", state, err)
	}
}

// IsConnected reports whether the broker connection is up. A nil client,
// i.e. MQTT disabled, is never connected.
func (c *MQTTClient) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
}

// Disconnect stops any pending connect attempt, marks the client offline
// and closes the connection. Safe to call more than once.
func (c *MQTTClient) Disconnect() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() { close(c.stop) })

	if c.client == nil || !c.client.IsConnected() {
		c.setConnected(false)
		return
	}
	c.announce(c.client, availabilityOffline)
	c.client.Disconnect(250)
	c.setConnected(false)
	log.Println("MQTT disconnected")
}

// GetClient returns the paho client, nil when MQTT is disabled
func (c *MQTTClient) GetClient() mqtt.Client {
	if c == nil {
		return nil
	}
	return c.client
}

// newMQTTClientWithMock wraps a provided mqtt.Client, used by tests
func newMQTTClientWithMock(client mqtt.Client) *MQTTClient {
	return newMQTTClient(client, "")
}
