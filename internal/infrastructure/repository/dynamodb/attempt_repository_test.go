package dynamodb

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

type tableFake struct {
	counts  map[string]int
	updates []*awsddb.UpdateItemInput
	err     error
}

func (f *tableFake) UpdateItem(_ context.Context, in *awsddb.UpdateItemInput, _ ...func(*awsddb.Options)) (*awsddb.UpdateItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.updates = append(f.updates, in)
	id := in.Key[attrEventID].(*types.AttributeValueMemberS).Value
	f.counts[id]++
	return &awsddb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
		attrAttempts: &types.AttributeValueMemberN{Value: strconv.Itoa(f.counts[id])},
	}}, nil
}

func (f *tableFake) GetItem(_ context.Context, in *awsddb.GetItemInput, _ ...func(*awsddb.Options)) (*awsddb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	id := in.Key[attrEventID].(*types.AttributeValueMemberS).Value
	n, ok := f.counts[id]
	if !ok {
		return &awsddb.GetItemOutput{}, nil
	}
	return &awsddb.GetItemOutput{Item: map[string]types.AttributeValue{
		attrEventID:  &types.AttributeValueMemberS{Value: id},
		attrAttempts: &types.AttributeValueMemberN{Value: strconv.Itoa(n)},
	}}, nil
}

func TestIncrementAttemptCounts(t *testing.T) {
	table := &tableFake{counts: map[string]int{}}
	repo := NewAttemptRepository(table, "attempts", time.Hour)

	for want := 1; want <= 3; want++ {
		got, err := repo.IncrementAttempt(context.Background(), "e1")
		if err != nil {
			t.Fatalf("IncrementAttempt() error = %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}

	in := table.updates[0]
	if aws.ToString(in.TableName) != "attempts" || in.ReturnValues != types.ReturnValueUpdatedNew {
		t.Fatalf("unexpected update input: %+v", in)
	}
	if !strings.Contains(aws.ToString(in.UpdateExpression), "#expires = :expires") {
		t.Fatalf("expected ttl in update expression, got %q", aws.ToString(in.UpdateExpression))
	}
}

func TestAttemptCount(t *testing.T) {
	table := &tableFake{counts: map[string]int{"e1": 2}}
	repo := NewAttemptRepository(table, "attempts", 0)

	got, err := repo.AttemptCount(context.Background(), "e1")
	if err != nil || got != 2 {
		t.Fatalf("AttemptCount(e1) = %d, %v", got, err)
	}
	got, err = repo.AttemptCount(context.Background(), "missing")
	if err != nil || got != 0 {
		t.Fatalf("AttemptCount(missing) = %d, %v", got, err)
	}
}

func TestErrorsAreTemporary(t *testing.T) {
	repo := NewAttemptRepository(&tableFake{err: errors.New("throttled")}, "attempts", 0)
	if _, err := repo.IncrementAttempt(context.Background(), "e1"); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}
