package dynamo

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"finzops/internal/store/core"
)

// Store implements core.Store against DynamoDB. Tables use the lowercase
// pk/sk composite key the application writes.
type Store struct {
	client *dynamodb.Client
}

// Config holds explicit construction parameters (mostly for tests and
// DynamoDB Local). For prod we rely primarily on the default credential
// chain plus the region environment variables.
type Config struct {
	Region          string
	Endpoint        string // optional; if set enables a custom endpoint (e.g. DynamoDB Local)
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string // optional
	SessionToken    string // optional
}

// New creates a DynamoDB store from Config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-2"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client}, nil
}

// OpenFromEnv constructs a store from process environment
// (FINZOPS_DYNAMO_ENDPOINT optionally points at DynamoDB Local).
func OpenFromEnv(ctx context.Context, region string) (*Store, error) {
	return New(ctx, Config{Region: region, Endpoint: os.Getenv("FINZOPS_DYNAMO_ENDPOINT")})
}

func (s *Store) Driver() core.Driver { return core.DriverDynamo }

func keyAttrs(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}

func (s *Store) Get(ctx context.Context, table, pk, sk string) (core.Record, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &table,
		Key:            keyAttrs(pk, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return core.Record{}, false, fmt.Errorf("get %s/%s: %w", pk, sk, err)
	}
	if len(out.Item) == 0 {
		return core.Record{}, false, nil
	}
	rec, err := fromItem(out.Item)
	if err != nil {
		return core.Record{}, false, err
	}
	return rec, true, nil
}

func (s *Store) Put(ctx context.Context, table string, rec core.Record) error {
	if rec.PK == "" || rec.SK == "" {
		return core.ErrMissingKey
	}
	attrs := make(map[string]any, len(rec.Attrs)+2)
	for k, v := range rec.Attrs {
		attrs[k] = v
	}
	attrs["pk"] = rec.PK
	attrs["sk"] = rec.SK
	item, err := attributevalue.MarshalMap(attrs)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", rec.PK, rec.SK, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &table, Item: item}); err != nil {
		return fmt.Errorf("put %s/%s: %w", rec.PK, rec.SK, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table, pk, sk string, set, setIfAbsent map[string]any) error {
	if len(set) == 0 && len(setIfAbsent) == 0 {
		return nil
	}
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	var clauses []string
	add := func(attr string, value any, ifAbsent bool) error {
		i := len(names)
		nameRef := fmt.Sprintf("#a%d", i)
		valueRef := fmt.Sprintf(":v%d", i)
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal attribute %s: %w", attr, err)
		}
		names[nameRef] = attr
		values[valueRef] = av
		if ifAbsent {
			clauses = append(clauses, fmt.Sprintf("%s = if_not_exists(%s, %s)", nameRef, nameRef, valueRef))
		} else {
			clauses = append(clauses, fmt.Sprintf("%s = %s", nameRef, valueRef))
		}
		return nil
	}
	// Deterministic expression order keeps retries and logs comparable.
	for _, attr := range sortedKeys(set) {
		if err := add(attr, set[attr], false); err != nil {
			return err
		}
	}
	for _, attr := range sortedKeys(setIfAbsent) {
		if err := add(attr, setIfAbsent[attr], true); err != nil {
			return err
		}
	}
	expr := "SET " + strings.Join(clauses, ", ")
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &table,
		Key:                       keyAttrs(pk, sk),
		UpdateExpression:          &expr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", pk, sk, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table, pk, sk string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: &table, Key: keyAttrs(pk, sk)})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", pk, sk, err)
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, table string, fn func(core.Record) error) error {
	var start map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{TableName: &table, ExclusiveStartKey: start})
		if err != nil {
			return err
		}
		for _, item := range out.Items {
			rec, err := fromItem(item)
			if err != nil {
				return err
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		start = out.LastEvaluatedKey
	}
}

func fromItem(item map[string]types.AttributeValue) (core.Record, error) {
	var attrs map[string]any
	if err := attributevalue.UnmarshalMap(item, &attrs); err != nil {
		return core.Record{}, fmt.Errorf("unmarshal item: %w", err)
	}
	rec := core.Record{Attrs: attrs}
	if pk, ok := attrs["pk"].(string); ok {
		rec.PK = pk
	}
	if sk, ok := attrs["sk"].(string); ok {
		rec.SK = sk
	}
	if rec.PK == "" || rec.SK == "" {
		return core.Record{}, core.ErrMissingKey
	}
	return rec, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
