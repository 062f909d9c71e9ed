// Package ddb implements the store contract on AWS DynamoDB. This is the
// only layer with knowledge of DynamoDB specifics: the partition key maps to
// PK, the row key to SK, and the version token to a conditioned
// RecordVersion attribute. Single-partition batches use TransactWriteItems.
package ddb

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"coursehub-backend/internal/store"
	appErrors "coursehub-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

const (
	attrPK      = "PK"
	attrSK      = "SK"
	attrVersion = "RecordVersion"
	attrKind    = "Kind"
)

// Store is the DynamoDB-backed keyed entity store.
type Store struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// New creates a DynamoDB store over the given table.
func New(client *dynamodb.Client, tableName string, logger *zap.Logger) *Store {
	return &Store{client: client, tableName: tableName, logger: logger}
}

func encodeVersion(n int) store.Version {
	return store.Version(strconv.Itoa(n))
}

func decodeVersion(v store.Version) (int, error) {
	n, err := strconv.Atoi(string(v))
	if err != nil {
		return 0, appErrors.NewValidation(fmt.Sprintf("malformed version token %q", v))
	}
	return n, nil
}

func (s *Store) marshal(rec store.Record, version int) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(rec.Attrs)
	if err != nil {
		return nil, appErrors.NewInternal("failed to marshal record attributes", err)
	}
	item[attrPK] = &types.AttributeValueMemberS{Value: rec.Key.Partition}
	item[attrSK] = &types.AttributeValueMemberS{Value: rec.Key.Row}
	item[attrVersion] = &types.AttributeValueMemberN{Value: strconv.Itoa(version)}
	if rec.Kind != "" {
		item[attrKind] = &types.AttributeValueMemberS{Value: rec.Kind}
	}
	return item, nil
}

func unmarshal(item map[string]types.AttributeValue) (*store.Record, error) {
	rec := &store.Record{Attrs: make(map[string]any)}
	if pk, ok := item[attrPK].(*types.AttributeValueMemberS); ok {
		rec.Key.Partition = pk.Value
	}
	if sk, ok := item[attrSK].(*types.AttributeValueMemberS); ok {
		rec.Key.Row = sk.Value
	}
	if v, ok := item[attrVersion].(*types.AttributeValueMemberN); ok {
		rec.Version = store.Version(v.Value)
	}
	if k, ok := item[attrKind].(*types.AttributeValueMemberS); ok {
		rec.Kind = k.Value
	}
	rest := make(map[string]types.AttributeValue, len(item))
	for name, av := range item {
		switch name {
		case attrPK, attrSK, attrVersion, attrKind:
		default:
			rest[name] = av
		}
	}
	if err := attributevalue.UnmarshalMap(rest, &rec.Attrs); err != nil {
		return nil, appErrors.NewInternal("failed to unmarshal record attributes", err)
	}
	return rec, nil
}

func key(partition, row string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: partition},
		attrSK: &types.AttributeValueMemberS{Value: row},
	}
}

// Get returns the record at (partition, row).
func (s *Store) Get(ctx context.Context, partition, row string) (*store.Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            key(partition, row),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, appErrors.NewInternal("failed to get item", err)
	}
	if out.Item == nil {
		return nil, appErrors.NewNotFoundf("record %s/%s not found", partition, row)
	}
	return unmarshal(out.Item)
}

// Create writes a new record, conditioned on the key not existing.
func (s *Store) Create(ctx context.Context, rec store.Record) (*store.Record, error) {
	item, err := s.marshal(rec, 1)
	if err != nil {
		return nil, err
	}
	cond := expression.AttributeNotExists(expression.Name(attrPK))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return nil, appErrors.NewInternal("failed to build create condition", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, appErrors.NewAlreadyExists(
				fmt.Sprintf("record %s/%s already exists", rec.Key.Partition, rec.Key.Row))
		}
		return nil, appErrors.NewInternal("put item failed", err)
	}
	out := rec
	out.Version = encodeVersion(1)
	return &out, nil
}

// Update applies rec at its key when the stored version matches expected.
// Replace rewrites the whole item; Merge patches only the supplied
// attributes through an update expression.
func (s *Store) Update(ctx context.Context, rec store.Record, expected store.Version, mode store.UpdateMode) (*store.Record, error) {
	expectedN, err := decodeVersion(expected)
	if err != nil {
		return nil, err
	}
	newN := expectedN + 1
	cond := expression.Name(attrVersion).Equal(expression.Value(expectedN))

	switch mode {
	case store.Replace:
		item, err := s.marshal(rec, newN)
		if err != nil {
			return nil, err
		}
		expr, err := expression.NewBuilder().WithCondition(cond).Build()
		if err != nil {
			return nil, appErrors.NewInternal("failed to build replace condition", err)
		}
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 aws.String(s.tableName),
			Item:                      item,
			ConditionExpression:       expr.Condition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if err != nil {
			return nil, casError(err, rec.Key)
		}

	case store.Merge:
		update := expression.Set(expression.Name(attrVersion), expression.Value(newN))
		for name, value := range rec.Attrs {
			update = update.Set(expression.Name(name), expression.Value(value))
		}
		if rec.Kind != "" {
			update = update.Set(expression.Name(attrKind), expression.Value(rec.Kind))
		}
		expr, err := expression.NewBuilder().WithCondition(cond).WithUpdate(update).Build()
		if err != nil {
			return nil, appErrors.NewInternal("failed to build merge expression", err)
		}
		_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(s.tableName),
			Key:                       key(rec.Key.Partition, rec.Key.Row),
			ConditionExpression:       expr.Condition(),
			UpdateExpression:          expr.Update(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if err != nil {
			return nil, casError(err, rec.Key)
		}
	}

	out := rec
	out.Version = encodeVersion(newN)
	return &out, nil
}

func casError(err error, k store.Key) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return appErrors.NewConflict(
			fmt.Sprintf("version mismatch on %s/%s", k.Partition, k.Row))
	}
	return appErrors.NewInternal("conditional write failed", err)
}

// Delete removes the record, conditioned on it existing so absence is
// reported as NotFound rather than silently succeeding.
func (s *Store) Delete(ctx context.Context, partition, row string) error {
	cond := expression.AttributeExists(expression.Name(attrPK))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return appErrors.NewInternal("failed to build delete condition", err)
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       key(partition, row),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return appErrors.NewNotFoundf("record %s/%s not found", partition, row)
		}
		return appErrors.NewInternal("delete item failed", err)
	}
	return nil
}

// Batch applies the ops in one TransactWriteItems call; DynamoDB makes the
// write all-or-nothing. Puts use a not-exists condition so a batch cannot
// silently clobber a concurrent create.
func (s *Store) Batch(ctx context.Context, partition string, ops []store.Op) error {
	if err := store.ValidateBatch(partition, ops); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	items := make([]types.TransactWriteItem, 0, len(ops))
	for _, op := range ops {
		switch op.Type {
		case store.OpPut:
			item, err := s.marshal(op.Record, 1)
			if err != nil {
				return err
			}
			items = append(items, types.TransactWriteItem{
				Put: &types.Put{
					TableName:           aws.String(s.tableName),
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			})
		case store.OpDelete:
			items = append(items, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName: aws.String(s.tableName),
					Key:       key(partition, op.Row),
				},
			})
		}
	}
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, reason := range canceled.CancellationReasons {
				if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
					return appErrors.NewAlreadyExists(
						fmt.Sprintf("batch put collided in partition %s", partition))
				}
			}
		}
		return appErrors.NewInternal("transactional batch failed", err)
	}
	return nil
}

// queryIterator pulls Query/Scan pages lazily so consumers can stop early
// without finishing the table walk.
type queryIterator struct {
	fetch   func(ctx context.Context, startKey map[string]types.AttributeValue) ([]map[string]types.AttributeValue, map[string]types.AttributeValue, error)
	ctx     context.Context
	buf     []map[string]types.AttributeValue
	pos     int
	current *store.Record
	lastKey map[string]types.AttributeValue
	started bool
	done    bool
	err     error
}

func (it *queryIterator) Next() bool {
	for {
		if it.err != nil || (it.done && it.pos >= len(it.buf)) {
			return false
		}
		if it.pos < len(it.buf) {
			rec, err := unmarshal(it.buf[it.pos])
			it.pos++
			if err != nil {
				it.err = err
				return false
			}
			it.current = rec
			return true
		}
		if it.started && it.lastKey == nil {
			it.done = true
			continue
		}
		items, lastKey, err := it.fetch(it.ctx, it.lastKey)
		if err != nil {
			it.err = err
			return false
		}
		it.started = true
		it.buf = items
		it.pos = 0
		it.lastKey = lastKey
		if lastKey == nil && len(items) == 0 {
			it.done = true
		}
	}
}

func (it *queryIterator) Record() *store.Record { return it.current }
func (it *queryIterator) Err() error            { return it.err }
func (it *queryIterator) Close() error          { it.done = true; it.buf = nil; return nil }

// List lazily queries one partition in row order.
func (s *Store) List(ctx context.Context, partition string) store.Iterator {
	keyCond := expression.Key(attrPK).Equal(expression.Value(partition))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return &queryIterator{err: appErrors.NewInternal("failed to build list expression", err)}
	}
	return &queryIterator{
		ctx: ctx,
		fetch: func(ctx context.Context, startKey map[string]types.AttributeValue) ([]map[string]types.AttributeValue, map[string]types.AttributeValue, error) {
			out, err := s.client.Query(ctx, &dynamodb.QueryInput{
				TableName:                 aws.String(s.tableName),
				KeyConditionExpression:    expr.KeyCondition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
				ExclusiveStartKey:         startKey,
			})
			if err != nil {
				return nil, nil, appErrors.NewInternal("failed to query partition", err)
			}
			return out.Items, out.LastEvaluatedKey, nil
		},
	}
}

// Scan lazily walks every record whose partition key begins with prefix.
func (s *Store) Scan(ctx context.Context, prefix string) store.Iterator {
	var expr expression.Expression
	var err error
	if prefix != "" {
		filter := expression.BeginsWith(expression.Name(attrPK), prefix)
		expr, err = expression.NewBuilder().WithFilter(filter).Build()
		if err != nil {
			return &queryIterator{err: appErrors.NewInternal("failed to build scan expression", err)}
		}
	}
	return &queryIterator{
		ctx: ctx,
		fetch: func(ctx context.Context, startKey map[string]types.AttributeValue) ([]map[string]types.AttributeValue, map[string]types.AttributeValue, error) {
			input := &dynamodb.ScanInput{
				TableName:         aws.String(s.tableName),
				ExclusiveStartKey: startKey,
			}
			if prefix != "" {
				input.FilterExpression = expr.Filter()
				input.ExpressionAttributeNames = expr.Names()
				input.ExpressionAttributeValues = expr.Values()
			}
			out, err := s.client.Scan(ctx, input)
			if err != nil {
				return nil, nil, appErrors.NewInternal("failed to scan table", err)
			}
			return out.Items, out.LastEvaluatedKey, nil
		},
	}
}

// Page returns up to limit records of a partition after startAfter.
func (s *Store) Page(ctx context.Context, partition string, limit int, startAfter *store.Key) ([]store.Record, *store.Key, error) {
	keyCond := expression.Key(attrPK).Equal(expression.Value(partition))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, nil, appErrors.NewInternal("failed to build page expression", err)
	}
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}
	if startAfter != nil {
		input.ExclusiveStartKey = key(startAfter.Partition, startAfter.Row)
	}
	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, nil, appErrors.NewInternal("failed to query page", err)
	}
	records := make([]store.Record, 0, len(out.Items))
	for _, item := range out.Items {
		rec, err := unmarshal(item)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, *rec)
	}
	var next *store.Key
	if out.LastEvaluatedKey != nil {
		next = &store.Key{}
		if pk, ok := out.LastEvaluatedKey[attrPK].(*types.AttributeValueMemberS); ok {
			next.Partition = pk.Value
		}
		if sk, ok := out.LastEvaluatedKey[attrSK].(*types.AttributeValueMemberS); ok {
			next.Row = sk.Value
		}
	}
	s.logger.Debug("page query",
		zap.String("partition", partition),
		zap.Int("items", len(records)),
		zap.Bool("hasMore", next != nil),
	)
	return records, next, nil
}

var _ store.Store = (*Store)(nil)
