package kafka

import (
	"context"
	log "log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
)

const (
	batchSize    = 32
	batchTimeout = 1 * time.Second

	retryInitialInterval = 100 * time.Millisecond
	retryMaxInterval     = 5 * time.Second
)

// LogicFunc 单条消息的业务逻辑；返回 backoff.Permanent 包装的错误时不再重试
type LogicFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

// pullMessageBatch 拉取一批消息并执行业务逻辑
func pullMessageBatch(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim, logic LogicFunc) error {
	batch := make([]*sarama.ConsumerMessage, 0, batchSize)
	ticker := time.NewTicker(batchTimeout)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				if len(batch) > 0 {
					processBatch(session, batch, logic)
				}
				return nil
			}
			batch = append(batch, msg)
			if len(batch) >= batchSize {
				processBatch(session, batch, logic)
				// 清空缓冲区 & 重置定时器
				batch = make([]*sarama.ConsumerMessage, 0, batchSize)
				ticker.Reset(batchTimeout)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				processBatch(session, batch, logic)
				batch = make([]*sarama.ConsumerMessage, 0, batchSize)
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// processBatch 按用户分组并发处理，同组内严格按到达顺序执行，全部结束后提交最后一条的位移
func processBatch(session sarama.ConsumerGroupSession, messages []*sarama.ConsumerMessage, logic LogicFunc) {
	var wg sync.WaitGroup

	for _, group := range groupByKey(messages) {
		wg.Add(1)
		go func(group []*sarama.ConsumerMessage) {
			defer wg.Done()
			for _, m := range group {
				if err := runWithRetry(session.Context(), m, logic); err != nil {
					log.Error("drop kafka message", "topic", m.Topic, "offset", m.Offset, "err", err)
				}
			}
		}(group)
	}

	wg.Wait()

	if len(messages) > 0 {
		session.MarkMessage(messages[len(messages)-1], "")
	}
}

// groupByKey 保持每组内的原始顺序
func groupByKey(messages []*sarama.ConsumerMessage) [][]*sarama.ConsumerMessage {
	index := make(map[string]int)
	var groups [][]*sarama.ConsumerMessage
	for _, msg := range messages {
		key := orderingKey(msg)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], msg)
	}
	return groups
}

// orderingKey 优先使用消息 key，否则取消息体中的 userId
func orderingKey(msg *sarama.ConsumerMessage) string {
	if len(msg.Key) > 0 {
		return "k:" + string(msg.Key)
	}
	var head struct {
		UserID uint64 `json:"userId"`
	}
	if err := json.Unmarshal(msg.Value, &head); err != nil || head.UserID == 0 {
		return ""
	}
	return "u:" + strconv.FormatUint(head.UserID, 10)
}

// runWithRetry 指数退避重试，直到成功、遇到永久错误或 ctx 结束
func runWithRetry(ctx context.Context, msg *sarama.ConsumerMessage, logic LogicFunc) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		return logic(ctx, msg)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		log.Warn("process message error, retrying", "topic", msg.Topic, "offset", msg.Offset, "next", next, "err", err)
	})
}
