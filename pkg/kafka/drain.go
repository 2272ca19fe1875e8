package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Drain reads every partition of topic from its first offset up to the
// high-water mark observed when reading starts, calling fn per message in
// partition order. It does not join a consumer group or commit offsets.
func Drain(ctx context.Context, brokers []string, topic string, fn func(key, value []byte) error) (int, error) {
	if len(brokers) == 0 {
		return 0, fmt.Errorf("draining %s: no brokers configured", topic)
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return 0, fmt.Errorf("dialing %s: %w", brokers[0], err)
	}
	partitions, err := conn.ReadPartitions(topic)
	conn.Close()
	if err != nil {
		return 0, fmt.Errorf("listing partitions of %s: %w", topic, err)
	}

	total := 0
	for _, p := range partitions {
		n, err := drainPartition(ctx, brokers, topic, p.ID, fn)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func drainPartition(ctx context.Context, brokers []string, topic string, partition int, fn func(key, value []byte) error) (int, error) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: partition,
		MaxBytes:  10e6,
	})
	defer r.Close()
	if err := r.SetOffset(kafka.FirstOffset); err != nil {
		return 0, fmt.Errorf("seeking partition %d: %w", partition, err)
	}
	lag, err := r.ReadLag(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading lag of partition %d: %w", partition, err)
	}
	n := 0
	for ; int64(n) < lag; n++ {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			return n, fmt.Errorf("reading partition %d: %w", partition, err)
		}
		if err := fn(msg.Key, msg.Value); err != nil {
			return n, err
		}
	}
	return n, nil
}
