package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"servicedesk/internal/store"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type SubscriberConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	Timeout  time.Duration
}

type snapshotApplier interface {
	Apply(ctx context.Context, snapshot store.Snapshot) (store.IngestResult, error)
}

// Subscriber feeds snapshots published on the ATM status topic into the ingest service.
type Subscriber struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
	service snapshotApplier
}

func newSubscriber(cfg SubscriberConfig, service snapshotApplier) *Subscriber {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Subscriber{topic: cfg.Topic, timeout: timeout, service: service}
}

// Subscribe connects to the broker. The topic is (re)subscribed on every
// connect so auto-reconnects keep receiving.
func Subscribe(cfg SubscriberConfig, service *Service) (*Subscriber, error) {
	s := newSubscriber(cfg, service)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Printf("mqtt connected broker=%s", cfg.Broker)
		token := client.Subscribe(s.topic, 1, s.handleMessage)
		if token.Wait() && token.Error() != nil {
			log.Printf("mqtt subscribe error topic=%s: %v", s.topic, token.Error())
			return
		}
		log.Printf("mqtt subscribed topic=%s", s.topic)
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("mqtt connection lost: %v", err)
	})

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker: %w", token.Error())
	}
	return s, nil
}

func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	if err := s.process(msg.Payload()); err != nil {
		log.Printf("mqtt ingest error topic=%s: %v", msg.Topic(), err)
	}
}

func (s *Subscriber) process(payload []byte) error {
	snapshot, err := ParseSnapshot(payload, SourceMQTT)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err = s.service.Apply(ctx, snapshot)
	return err
}

func (s *Subscriber) Close() {
	if s.client == nil {
		return
	}
	s.client.Disconnect(250)
	log.Printf("mqtt disconnected")
}
