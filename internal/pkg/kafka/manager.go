package kafka

import (
	"Folio/internal/api/config"
	"Folio/internal/service"
	"context"
	log "log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

const consumeRetryDelay = 2 * time.Second

type consumer struct {
	name    string
	topic   string
	group   sarama.ConsumerGroup
	handler sarama.ConsumerGroupHandler
}

// ConsumerManager 管理业务事件与实时转发两个消费组
type ConsumerManager struct {
	consumers []consumer
}

func NewConsumerManager(cfg *config.Config, ns service.NotificationService) (*ConsumerManager, error) {
	saramaCfg := newSaramaConfig(cfg.Kafka)

	libraryGroup, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaLibraryConsumer.GroupID, saramaCfg)
	if err != nil {
		return nil, err
	}
	relayGroup, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaRelayConsumer.GroupID, saramaCfg)
	if err != nil {
		_ = libraryGroup.Close()
		return nil, err
	}

	return &ConsumerManager{
		consumers: []consumer{
			{name: "library", topic: cfg.KafkaLibraryConsumer.Topic, group: libraryGroup, handler: NewLibraryEventHandler(ns)},
			{name: "relay", topic: cfg.KafkaRelayConsumer.Topic, group: relayGroup, handler: NewRelayHandler(ns)},
		},
	}, nil
}

// Start 启动所有消费者，阻塞到 ctx 结束
func (m *ConsumerManager) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, c := range m.consumers {
		wg.Add(1)
		go func(c consumer) {
			defer wg.Done()
			log.Info("kafka consumer started", "name", c.name, "topic", c.topic)
			go func() {
				for err := range c.group.Errors() {
					log.Error("kafka consumer error", "name", c.name, "err", err)
				}
			}()
			for {
				if err := c.group.Consume(ctx, []string{c.topic}, c.handler); err != nil {
					log.Error("error from consumer", "name", c.name, "err", err)
					select {
					case <-ctx.Done():
					case <-time.After(consumeRetryDelay):
					}
				}
				if ctx.Err() != nil {
					return
				}
			}
		}(c)
	}

	<-ctx.Done()
	log.Info("Kafka Manager shutting down...")
	wg.Wait()

	for _, c := range m.consumers {
		if err := c.group.Close(); err != nil {
			log.Error("failed to close consumer", "name", c.name, "err", err)
		}
	}
	return nil
}
