// Package dynamodb keeps attempt counters in a DynamoDB table keyed by event_id.
package dynamodb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

const (
	attrEventID   = "event_id"
	attrAttempts  = "attempts"
	attrUpdatedAt = "updated_at"
	attrExpiresAt = "expires_at"
)

// API is the subset of the DynamoDB client used by AttemptRepository.
type API interface {
	UpdateItem(ctx context.Context, params *awsddb.UpdateItemInput, optFns ...func(*awsddb.Options)) (*awsddb.UpdateItemOutput, error)
	GetItem(ctx context.Context, params *awsddb.GetItemInput, optFns ...func(*awsddb.Options)) (*awsddb.GetItemOutput, error)
}

type AttemptRepository struct {
	DB    API
	Table string
	// TTL sets expires_at for DynamoDB time-to-live; zero disables it.
	TTL time.Duration
	now func() time.Time
}

func NewAttemptRepository(db API, table string, ttl time.Duration) *AttemptRepository {
	return &AttemptRepository{DB: db, Table: table, TTL: ttl, now: time.Now}
}

// IncrementAttempt atomically adds one to the counter and returns the new value.
func (r *AttemptRepository) IncrementAttempt(ctx context.Context, eventID string) (int, error) {
	now := r.now().UTC()
	update := "ADD #attempts :one SET #updated = :now"
	names := map[string]string{"#attempts": attrAttempts, "#updated": attrUpdatedAt}
	values := map[string]types.AttributeValue{
		":one": &types.AttributeValueMemberN{Value: "1"},
		":now": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
	}
	if r.TTL > 0 {
		update += ", #expires = :expires"
		names["#expires"] = attrExpiresAt
		values[":expires"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(r.TTL).Unix(), 10)}
	}

	out, err := r.DB.UpdateItem(ctx, &awsddb.UpdateItemInput{
		TableName:                 aws.String(r.Table),
		Key:                       key(eventID),
		UpdateExpression:          aws.String(update),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, domain.WrapError(domain.ErrTemporary, "increment attempt", err)
	}
	return readAttempts(out.Attributes)
}

func (r *AttemptRepository) AttemptCount(ctx context.Context, eventID string) (int, error) {
	out, err := r.DB.GetItem(ctx, &awsddb.GetItemInput{
		TableName:      aws.String(r.Table),
		Key:            key(eventID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, domain.WrapError(domain.ErrTemporary, "attempt count", err)
	}
	if len(out.Item) == 0 {
		return 0, nil
	}
	return readAttempts(out.Item)
}

func key(eventID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrEventID: &types.AttributeValueMemberS{Value: eventID},
	}
}

func readAttempts(item map[string]types.AttributeValue) (int, error) {
	n, ok := item[attrAttempts].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attempts attribute missing or not a number")
	}
	attempts, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("parse attempts %q: %w", n.Value, err)
	}
	return attempts, nil
}
