package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoTable
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoOptions configures the DynamoDB client
type DynamoOptions struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local
	Endpoint string
}

// NewDynamoClient builds a DynamoDB client. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func NewDynamoClient(ctx context.Context, opts DynamoOptions) (*dynamodb.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Debug().
		Str("region", cfg.Region).
		Bool("static_credentials", opts.AccessKeyID != "").
		Str("endpoint", opts.Endpoint).
		Msg("Creating DynamoDB client")

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

// DynamoTable stores each value as a string attribute next to a string key attribute
type DynamoTable struct {
	client    DynamoAPI
	tableName string
	keyAttr   string
	valueAttr string
}

// NewDynamoTable creates a table over an existing DynamoDB table
func NewDynamoTable(client DynamoAPI, tableName, keyAttr, valueAttr string) *DynamoTable {
	return &DynamoTable{
		client:    client,
		tableName: tableName,
		keyAttr:   keyAttr,
		valueAttr: valueAttr,
	}
}

func (d *DynamoTable) key(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		d.keyAttr: &types.AttributeValueMemberS{Value: key},
	}
}

func (d *DynamoTable) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            d.key(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		var rnf *types.ResourceNotFoundException
		if errors.As(err, &rnf) {
			log.Warn().Str("table", d.tableName).Msg("DynamoDB table not found")
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("dynamodb get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return d.value(out.Item)
}

func (d *DynamoTable) value(item map[string]types.AttributeValue) ([]byte, error) {
	attr, ok := item[d.valueAttr]
	if !ok {
		return nil, fmt.Errorf("item has no %q attribute", d.valueAttr)
	}
	s, ok := attr.(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("attribute %q is %T, want string", d.valueAttr, attr)
	}
	return []byte(s.Value), nil
}

func (d *DynamoTable) Put(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	item := d.key(key)
	item[d.valueAttr] = &types.AttributeValueMemberS{Value: string(value)}
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put item: %w", err)
	}
	return nil
}

func (d *DynamoTable) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(d.tableName),
		Key:                      d.key(key),
		ConditionExpression:      aws.String("attribute_exists(#k)"),
		ExpressionAttributeNames: map[string]string{"#k": d.keyAttr},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("dynamodb delete item: %w", err)
	}
	return nil
}

// Scan reads a single page. DynamoDB applies the limit before filtering, so
// fewer than limit items may come back even when more exist.
func (d *DynamoTable) Scan(ctx context.Context, limit int) ([]Item, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	out, err := d.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(d.tableName),
		Limit:     aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb scan: %w", err)
	}

	items := make([]Item, 0, len(out.Items))
	for _, raw := range out.Items {
		k, ok := raw[d.keyAttr].(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		v, err := d.value(raw)
		if err != nil {
			log.Warn().Err(err).Str("table", d.tableName).Str("key", k.Value).Msg("Skipping malformed item")
			continue
		}
		items = append(items, Item{Key: k.Value, Value: v})
	}
	return items, nil
}
