package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"

	"github.com/segmentio/kafka-go"
)

// NotificationKinds lists every kind the engine emits.
var NotificationKinds = []models.NotificationKind{
	models.NotifyPaymentConfirmationRequested,
	models.NotifyPaymentVerified,
	models.NotifyPaymentRejected,
	models.NotifyWaitingListPromoted,
}

// TopicFor names the topic a notification kind is published to.
func TopicFor(prefix string, kind models.NotificationKind) string {
	return prefix + string(kind)
}

// NotificationTopics returns the topics of every notification kind.
func NotificationTopics(prefix string) []string {
	topics := make([]string, 0, len(NotificationKinds))
	for _, kind := range NotificationKinds {
		topics = append(topics, TopicFor(prefix, kind))
	}
	return topics
}

// EnsureTopicsExist creates Kafka topics if they don't already exist
func EnsureTopicsExist(ctx context.Context, brokers []string, topics []string, log *logger.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		err = controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		switch {
		case err == nil:
			log.LogKafka("TOPIC_CREATED", topic, "created")
		case errors.Is(err, kafka.TopicAlreadyExists):
			log.LogKafka("TOPIC_EXISTS", topic, "already exists")
		default:
			// keep going, the writer may still auto-create it
			log.LogKafka("TOPIC_FAILED", topic, err.Error())
		}
	}

	// Wait a moment for topics to be fully created
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second):
	}
	return nil
}
