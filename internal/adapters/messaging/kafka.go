package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/pricing-service/pkg/interfaces"
	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"
)

const pollTimeout = 100 * time.Millisecond

// KafkaMessaging реализация MessagingPort с использованием Kafka
type KafkaMessaging struct {
	producer       *kafka.Producer
	consumers      map[string]*kafka.Consumer
	consumersMutex sync.RWMutex
	handlers       map[string]map[string]interfaces.MessageHandler // topic -> handlerID -> handler
	handlersMutex  sync.RWMutex
	brokers        string
	groupID        string
	logger         interfaces.LoggerPort
}

// NewKafkaMessaging создает новый экземпляр KafkaMessaging
func NewKafkaMessaging(brokers []string, groupID string, logger interfaces.LoggerPort) (interfaces.MessagingPort, error) {
	bootstrap := strings.Join(brokers, ",")
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":            bootstrap,
		"client.id":                    "pricing-service-producer",
		"acks":                         "all",
		"retries":                      5,
		"retry.backoff.ms":             500,
		"compression.type":             "snappy",
		"linger.ms":                    10,
		"batch.size":                   16384,
		"message.max.bytes":            1000000,
		"queue.buffering.max.messages": 100000,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Kafka producer: %w", err)
	}

	return &KafkaMessaging{
		producer:  producer,
		consumers: make(map[string]*kafka.Consumer),
		handlers:  make(map[string]map[string]interfaces.MessageHandler),
		brokers:   bootstrap,
		groupID:   groupID,
		logger:    logger,
	}, nil
}

// messageToKafkaMessage преобразует полезную нагрузку в kafka.Message
func messageToKafkaMessage(topic string, message []byte) *kafka.Message {
	headers := []kafka.Header{
		{Key: "message_id", Value: []byte(uuid.New().String())},
		{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339Nano))},
	}

	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          message,
		Headers:        headers,
	}
}

// kafkaMessageToMessage преобразует kafka.Message в Message
func kafkaMessageToMessage(msg *kafka.Message) *interfaces.Message {
	headers := make(map[string]string)
	for _, header := range msg.Headers {
		headers[header.Key] = string(header.Value)
	}

	var key string
	if msg.Key != nil {
		key = string(msg.Key)
	}

	publishedAt := time.Now()
	if tsStr, ok := headers["timestamp"]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, tsStr); err == nil {
			publishedAt = ts
		}
	}

	return &interfaces.Message{
		ID:          headers["message_id"],
		Topic:       *msg.TopicPartition.Topic,
		Key:         key,
		Value:       msg.Value,
		Headers:     headers,
		PublishedAt: publishedAt,
		Attempts:    0,
	}
}

// Publish публикует сообщение в указанную тему
func (k *KafkaMessaging) Publish(ctx context.Context, topic string, message []byte) error {
	return k.producer.Produce(messageToKafkaMessage(topic, message), nil)
}

// Subscribe подписывается на указанную тему и обрабатывает сообщения с помощью handler
func (k *KafkaMessaging) Subscribe(ctx context.Context, topic string, handler interfaces.MessageHandler) (func() error, error) {
	handlerID := uuid.New().String()

	k.handlersMutex.Lock()
	if _, ok := k.handlers[topic]; !ok {
		k.handlers[topic] = make(map[string]interfaces.MessageHandler)
	}
	k.handlers[topic][handlerID] = handler
	k.handlersMutex.Unlock()

	kafkaConfig := &kafka.ConfigMap{
		"bootstrap.servers":       k.brokers,
		"group.id":                k.groupID,
		"auto.offset.reset":       "latest",
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
		"session.timeout.ms":      30000,
		"max.poll.interval.ms":    300000,
		"heartbeat.interval.ms":   3000,
	}

	consumer, err := kafka.NewConsumer(kafkaConfig)
	if err != nil {
		k.handlersMutex.Lock()
		delete(k.handlers[topic], handlerID)
		k.handlersMutex.Unlock()
		return nil, fmt.Errorf("ошибка создания Kafka consumer: %w", err)
	}

	if err = consumer.Subscribe(topic, nil); err != nil {
		k.handlersMutex.Lock()
		delete(k.handlers[topic], handlerID)
		k.handlersMutex.Unlock()
		consumer.Close()
		return nil, fmt.Errorf("ошибка подписки на топик %s: %w", topic, err)
	}

	k.consumersMutex.Lock()
	k.consumers[handlerID] = consumer
	k.consumersMutex.Unlock()

	go k.consumeMessages(ctx, consumer, topic, handlerID)

	unsubscribe := func() error {
		k.handlersMutex.Lock()
		delete(k.handlers[topic], handlerID)
		k.handlersMutex.Unlock()

		k.consumersMutex.Lock()
		consumer := k.consumers[handlerID]
		delete(k.consumers, handlerID)
		k.consumersMutex.Unlock()

		if consumer != nil {
			return consumer.Close()
		}
		return nil
	}

	return unsubscribe, nil
}

// consumeMessages обрабатывает сообщения из Kafka
func (k *KafkaMessaging) consumeMessages(ctx context.Context, consumer *kafka.Consumer, topic, handlerID string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			ev := consumer.Poll(int(pollTimeout.Milliseconds()))
			if ev == nil {
				continue
			}

			switch e := ev.(type) {
			case *kafka.Message:
				msg := kafkaMessageToMessage(e)

				k.handlersMutex.RLock()
				handlers, ok := k.handlers[topic]
				if !ok {
					k.handlersMutex.RUnlock()
					continue
				}
				handler, ok := handlers[handlerID]
				k.handlersMutex.RUnlock()
				if !ok {
					continue
				}

				if err := handler(ctx, msg); err != nil {
					k.logger.ErrorWithContext(ctx, "Ошибка обработки сообщения",
						interfaces.LogField{Key: "topic", Value: topic},
						interfaces.LogField{Key: "message_id", Value: msg.ID},
						interfaces.LogField{Key: "error", Value: err.Error()},
					)
				}

			case kafka.Error:
				k.logger.ErrorWithContext(ctx, "Ошибка Kafka",
					interfaces.LogField{Key: "topic", Value: topic},
					interfaces.LogField{Key: "error", Value: e.Error()},
				)
				if e.Code() == kafka.ErrAllBrokersDown {
					return
				}
			}
		}
	}
}

// Close закрывает соединение с системой обмена сообщениями
func (k *KafkaMessaging) Close() error {
	k.consumersMutex.Lock()
	for id, consumer := range k.consumers {
		consumer.Close()
		delete(k.consumers, id)
	}
	k.consumersMutex.Unlock()

	k.producer.Flush(15 * 1000)
	k.producer.Close()

	return nil
}
