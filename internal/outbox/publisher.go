package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/artspaces/settlement/internal/adapters/crdb"
	"github.com/artspaces/settlement/internal/adapters/rabbit"
	"github.com/artspaces/settlement/internal/observability"
)

// Publisher drains NEW outbox rows to the events exchange. Post-settlement
// side effects ride this path so a failure there can never be mistaken for
// a settlement failure.
type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			records, err := p.repo.GetUnpublishedOutbox(ctx, 10)
			if err != nil {
				p.logger.Error("outbox poll failed", err)
				continue
			}
			for _, rec := range records {
				observability.OutboxLag.Set(time.Since(rec.CreatedAt).Seconds())
				msg := amqp.Publishing{
					MessageId:   rec.DedupeKey,
					ContentType: "application/json",
					Body:        rec.Payload,
				}
				err := p.rabbitPub.Publish(ctx, rec.EventType, msg)
				if err != nil {
					p.logger.WithField("outbox_id", rec.ID).Error("outbox publish failed", err)
					continue
				}
				if err := p.repo.MarkPublished(ctx, rec.ID, time.Now(), rec.DedupeKey); err != nil {
					p.logger.WithField("outbox_id", rec.ID).Error("outbox mark published failed", err)
				}
			}
		}
	}
}
