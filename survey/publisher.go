package survey

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher mirrors session events to MQTT:
// {prefix}/measurements/{id} carries each accepted point (retained) and
// {prefix}/status carries the latest snapshot.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          *Snapshot
	mu            sync.RWMutex
}

// measurementMessage is the payload of a measurement topic
type measurementMessage struct {
	MeasurementPoint
	Signal    string `json:"signal"`
	Color     string `json:"color"`
	Timestamp int64  `json:"timestamp"`
}

// NewPublisher creates a new event publisher.
// If client is nil, publishing is disabled.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "wifisurvey"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true,
	}
}

// OnSessionEvent publishes the event. Failures are logged, never returned,
// so a broker outage cannot disturb the session.
func (p *Publisher) OnSessionEvent(ev Event) {
	if ev.Measurement != nil {
		if err := p.PublishMeasurement(*ev.Measurement); err != nil {
			log.Printf("Error publishing measurement %d: %v", ev.Measurement.ID, err)
		}
	}
	if err := p.PublishStatus(ev.Snapshot); err != nil {
		log.Printf("[DEBUG] Status not published: %v", err)
	}
}

// ErrPublisherOffline is returned while the broker connection is down
var ErrPublisherOffline = errors.New("mqtt publisher offline")

// PublishMeasurement publishes an accepted measurement to its own topic.
// Point topics are always retained so late subscribers see the full survey.
func (p *Publisher) PublishMeasurement(m MeasurementPoint) error {
	bucket := BucketFor(m.RSSI)
	payload, err := json.Marshal(measurementMessage{
		MeasurementPoint: m,
		Signal:           bucket.String(),
		Color:            bucket.Hex(),
		Timestamp:        time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshaling measurement: %w", err)
	}

	topic := fmt.Sprintf("%s/measurements/%d", p.publishPrefix, m.ID)
	if err := p.publish(topic, true, payload); err != nil {
		return err
	}

	log.Printf("Published measurement %d: %d dBm at (%d, %d)", m.ID, m.RSSI, m.X, m.Y)
	return nil
}

// PublishStatus records the snapshot and publishes it to {prefix}/status
func (p *Publisher) PublishStatus(snap Snapshot) error {
	p.mu.Lock()
	p.last = &snap
	retain := p.retain
	p.mu.Unlock()

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling status: %w", err)
	}
	return p.publish(p.publishPrefix+"/status", retain, payload)
}

func (p *Publisher) publish(topic string, retain bool, payload []byte) error {
	if p.client == nil || !p.client.IsConnected() {
		return ErrPublisherOffline
	}

	p.mu.RLock()
	qos := p.qos
	p.mu.RUnlock()

	token := p.client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// LastStatus returns the most recent snapshot handed to the publisher
func (p *Publisher) LastStatus() (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return Snapshot{}, false
	}
	return *p.last, true
}

// Republish sends the last recorded snapshot again, e.g. after a reconnect
// with a clean session.
func (p *Publisher) Republish() {
	snap, ok := p.LastStatus()
	if !ok {
		return
	}
	if err := p.PublishStatus(snap); err != nil {
		log.Printf("Error republishing status: %v", err)
	}
}

// SetQoS changes the QoS used for later publishes; values above 2 are ignored
func (p *Publisher) SetQoS(qos byte) {
	if qos > 2 {
		return
	}
	p.mu.Lock()
	p.qos = qos
	p.mu.Unlock()
}

// SetRetain controls whether status snapshots are retained
func (p *Publisher) SetRetain(retain bool) {
	p.mu.Lock()
	p.retain = retain
	p.mu.Unlock()
}
