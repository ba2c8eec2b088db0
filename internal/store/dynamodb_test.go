package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo emulates a single DynamoDB table keyed by one string attribute
type fakeDynamo struct {
	mu       sync.Mutex
	keyAttr  string
	items    map[string]map[string]types.AttributeValue
	getErr   error
	lastGet  *dynamodb.GetItemInput
	lastScan *dynamodb.ScanInput
}

func newFakeDynamo(keyAttr string) *fakeDynamo {
	return &fakeDynamo{keyAttr: keyAttr, items: make(map[string]map[string]types.AttributeValue)}
}

func (f *fakeDynamo) keyOf(key map[string]types.AttributeValue) string {
	return key[f.keyAttr].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastGet = in
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &dynamodb.GetItemOutput{Item: f.items[f.keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[f.keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.keyOf(in.Key)
	if _, ok := f.items[k]; !ok && in.ConditionExpression != nil {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	delete(f.items, k)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastScan = in
	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := &dynamodb.ScanOutput{}
	for _, k := range keys {
		if in.Limit != nil && len(out.Items) >= int(*in.Limit) {
			break
		}
		out.Items = append(out.Items, f.items[k])
	}
	return out, nil
}

func TestDynamoTable(t *testing.T) {
	exerciseTable(t, NewDynamoTable(newFakeDynamo("conversationId"), "conversations", "conversationId", "conversation"))
}

func TestDynamoTableItemLayout(t *testing.T) {
	fake := newFakeDynamo("conversationId")
	table := NewDynamoTable(fake, "conversations", "conversationId", "conversation")
	require.NoError(t, table.Put(context.Background(), "abc", []byte(`{"id":"abc"}`)))

	item := fake.items["abc"]
	require.NotNil(t, item)
	assert.Equal(t, "abc", item["conversationId"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, `{"id":"abc"}`, item["conversation"].(*types.AttributeValueMemberS).Value)
}

func TestDynamoTableScanPassesLimit(t *testing.T) {
	fake := newFakeDynamo("conversationId")
	table := NewDynamoTable(fake, "conversations", "conversationId", "conversation")
	_, err := table.Scan(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, fake.lastScan)
	assert.Equal(t, int32(7), *fake.lastScan.Limit)
	assert.Equal(t, "conversations", *fake.lastScan.TableName)
}

func TestDynamoTableScanSkipsMalformed(t *testing.T) {
	fake := newFakeDynamo("conversationId")
	fake.items["bad"] = map[string]types.AttributeValue{
		"conversationId": &types.AttributeValueMemberS{Value: "bad"},
		"conversation":   &types.AttributeValueMemberN{Value: "1"},
	}
	fake.items["good"] = map[string]types.AttributeValue{
		"conversationId": &types.AttributeValueMemberS{Value: "good"},
		"conversation":   &types.AttributeValueMemberS{Value: "{}"},
	}
	table := NewDynamoTable(fake, "conversations", "conversationId", "conversation")

	items, err := table.Scan(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "good", items[0].Key)
}

func TestDynamoTableMissingTableIsNotFound(t *testing.T) {
	fake := newFakeDynamo("conversationId")
	fake.getErr = &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
	table := NewDynamoTable(fake, "conversations", "conversationId", "conversation")

	_, err := table.Get(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoTableGetErrorPropagates(t *testing.T) {
	fake := newFakeDynamo("conversationId")
	fake.getErr = errors.New("throttled")
	table := NewDynamoTable(fake, "conversations", "conversationId", "conversation")

	_, err := table.Get(context.Background(), "abc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "throttled")
}

func TestDynamoTableDeleteThenGetReadsConsistently(t *testing.T) {
	fake := newFakeDynamo("conversationId")
	table := NewDynamoTable(fake, "conversations", "conversationId", "conversation")
	ctx := context.Background()
	require.NoError(t, table.Put(ctx, "abc", []byte(`{}`)))
	require.NoError(t, table.Delete(ctx, "abc"))

	_, err := table.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NotNil(t, fake.lastGet)
	require.NotNil(t, fake.lastGet.ConsistentRead)
	assert.True(t, *fake.lastGet.ConsistentRead)
}
