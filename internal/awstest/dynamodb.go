// Package awstest provides in-memory stand-ins for the AWS clients used by the
// stores, publisher and metrics recorder. The DynamoDB fake understands the
// small expression dialect those callers emit: AND-joined comparisons,
// attribute_exists/attribute_not_exists, and SET/REMOVE update clauses.
package awstest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// DynamoDB is an in-memory table set keyed by each table's partition key.
type DynamoDB struct {
	mu     sync.Mutex
	keys   map[string]string
	tables map[string]map[string]item
	fail   map[string]error
	calls  map[string]int
}

// NewDynamoDB returns an empty fake.
func NewDynamoDB() *DynamoDB {
	return &DynamoDB{
		keys:   map[string]string{},
		tables: map[string]map[string]item{},
		fail:   map[string]error{},
		calls:  map[string]int{},
	}
}

// CreateTable registers a table and the name of its partition key attribute.
func (d *DynamoDB) CreateTable(name, keyAttr string) *DynamoDB {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[name] = keyAttr
	if _, ok := d.tables[name]; !ok {
		d.tables[name] = map[string]item{}
	}
	return d
}

// FailNext makes the next call to op ("PutItem", "Query", ...) return err.
func (d *DynamoDB) FailNext(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[op] = err
}

// Calls reports how many times op was invoked.
func (d *DynamoDB) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// SeedValue marshals v with attributevalue and seeds it. Records owned by other
// systems, such as registry users, enter tables this way in tests.
func (d *DynamoDB) SeedValue(table string, v interface{}) {
	it, err := attributevalue.MarshalMap(v)
	if err != nil {
		panic(err)
	}
	d.Seed(table, it)
}

// Seed writes an item directly, bypassing conditions.
func (d *DynamoDB) Seed(table string, it map[string]types.AttributeValue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pk, err := d.keyOf(table, it)
	if err != nil {
		panic(err)
	}
	d.tables[table][pk] = copyItem(it)
}

// Item returns a copy of the stored item or nil.
func (d *DynamoDB) Item(table, key string) map[string]types.AttributeValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	it, ok := d.tables[table][key]
	if !ok {
		return nil
	}
	return copyItem(it)
}

// Len reports the number of items in table.
func (d *DynamoDB) Len(table string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tables[table])
}

func (d *DynamoDB) enter(op string) error {
	d.calls[op]++
	if err, ok := d.fail[op]; ok {
		delete(d.fail, op)
		return err
	}
	return nil
}

func (d *DynamoDB) keyOf(table string, it item) (string, error) {
	attr, ok := d.keys[table]
	if !ok {
		return "", fmt.Errorf("awstest: unknown table %q", table)
	}
	v, ok := it[attr]
	if !ok {
		return "", fmt.Errorf("awstest: item for %q missing key %q", table, attr)
	}
	switch av := v.(type) {
	case *types.AttributeValueMemberS:
		return av.Value, nil
	case *types.AttributeValueMemberN:
		return av.Value, nil
	}
	return "", fmt.Errorf("awstest: unsupported key type %T", v)
}

// PutItem implements aws.DynamoDBAPI.
func (d *DynamoDB) PutItem(_ context.Context, in *dyn.PutItemInput, _ ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("PutItem"); err != nil {
		return nil, err
	}
	if err := d.put(*in.TableName, in.Item, in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	return &dyn.PutItemOutput{}, nil
}

func (d *DynamoDB) put(table string, it item, cond *string, names map[string]string, values item) error {
	pk, err := d.keyOf(table, it)
	if err != nil {
		return err
	}
	if cond != nil {
		ok, err := evalCondition(*cond, d.tables[table][pk], names, values)
		if err != nil {
			return err
		}
		if !ok {
			return &types.ConditionalCheckFailedException{Message: strPtr("conditional request failed")}
		}
	}
	d.tables[table][pk] = copyItem(it)
	return nil
}

// GetItem implements aws.DynamoDBAPI.
func (d *DynamoDB) GetItem(_ context.Context, in *dyn.GetItemInput, _ ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("GetItem"); err != nil {
		return nil, err
	}
	pk, err := d.keyOf(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	it, ok := d.tables[*in.TableName][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(it)}, nil
}

// UpdateItem implements aws.DynamoDBAPI.
func (d *DynamoDB) UpdateItem(_ context.Context, in *dyn.UpdateItemInput, _ ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("UpdateItem"); err != nil {
		return nil, err
	}
	updated, err := d.update(*in.TableName, in.Key, in.UpdateExpression, in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	out := &dyn.UpdateItemOutput{}
	if in.ReturnValues != types.ReturnValueNone && in.ReturnValues != "" {
		out.Attributes = copyItem(updated)
	}
	return out, nil
}

func (d *DynamoDB) update(table string, key item, expr, cond *string, names map[string]string, values item) (item, error) {
	pk, err := d.keyOf(table, key)
	if err != nil {
		return nil, err
	}
	current := d.tables[table][pk]
	if cond != nil {
		ok, err := evalCondition(*cond, current, names, values)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: strPtr("conditional request failed")}
		}
	}
	next := copyItem(current)
	if next == nil {
		next = copyItem(key)
	}
	if expr != nil {
		if err := applyUpdate(*expr, next, names, values); err != nil {
			return nil, err
		}
	}
	d.tables[table][pk] = next
	return next, nil
}

// DeleteItem implements aws.DynamoDBAPI.
func (d *DynamoDB) DeleteItem(_ context.Context, in *dyn.DeleteItemInput, _ ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("DeleteItem"); err != nil {
		return nil, err
	}
	pk, err := d.keyOf(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	current, exists := d.tables[*in.TableName][pk]
	if in.ConditionExpression != nil {
		ok, err := evalCondition(*in.ConditionExpression, current, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: strPtr("conditional request failed")}
		}
	}
	delete(d.tables[*in.TableName], pk)
	out := &dyn.DeleteItemOutput{}
	if exists && in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = copyItem(current)
	}
	return out, nil
}

// Query implements aws.DynamoDBAPI. Index names are ignored; the key condition is
// evaluated against item attributes like a filter.
func (d *DynamoDB) Query(_ context.Context, in *dyn.QueryInput, _ ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("Query"); err != nil {
		return nil, err
	}
	items, err := d.match(*in.TableName, []*string{in.KeyConditionExpression, in.FilterExpression}, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	return &dyn.QueryOutput{Items: items, Count: int32(len(items))}, nil
}

// Scan implements aws.DynamoDBAPI.
func (d *DynamoDB) Scan(_ context.Context, in *dyn.ScanInput, _ ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("Scan"); err != nil {
		return nil, err
	}
	items, err := d.match(*in.TableName, []*string{in.FilterExpression}, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	return &dyn.ScanOutput{Items: items, Count: int32(len(items))}, nil
}

func (d *DynamoDB) match(table string, exprs []*string, names map[string]string, values item) ([]item, error) {
	tbl, ok := d.tables[table]
	if !ok {
		return nil, fmt.Errorf("awstest: unknown table %q", table)
	}
	keys := make([]string, 0, len(tbl))
	for k := range tbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]item, 0, len(keys))
	for _, k := range keys {
		it := tbl[k]
		keep := true
		for _, e := range exprs {
			if e == nil || *e == "" {
				continue
			}
			ok, err := evalCondition(*e, it, names, values)
			if err != nil {
				return nil, err
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, copyItem(it))
		}
	}
	return out, nil
}

// TransactWriteItems implements aws.DynamoDBAPI. All conditions are checked before
// any write is applied.
func (d *DynamoDB) TransactWriteItems(_ context.Context, in *dyn.TransactWriteItemsInput, _ ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter("TransactWriteItems"); err != nil {
		return nil, err
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	canceled := false
	for i, ti := range in.TransactItems {
		table, key, cond, names, values := transactTarget(ti)
		if table == "" {
			return nil, errors.New("awstest: empty transact item")
		}
		reasons[i] = types.CancellationReason{Code: strPtr("None")}
		if cond == nil {
			continue
		}
		pk, err := d.keyOf(table, key)
		if err != nil {
			return nil, err
		}
		ok, err := evalCondition(*cond, d.tables[table][pk], names, values)
		if err != nil {
			return nil, err
		}
		if !ok {
			canceled = true
			reasons[i] = types.CancellationReason{Code: strPtr("ConditionalCheckFailed")}
		}
	}
	if canceled {
		return nil, &types.TransactionCanceledException{
			Message:             strPtr("transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range in.TransactItems {
		switch {
		case ti.Put != nil:
			if err := d.put(*ti.Put.TableName, ti.Put.Item, nil, nil, nil); err != nil {
				return nil, err
			}
		case ti.Update != nil:
			u := ti.Update
			if _, err := d.update(*u.TableName, u.Key, u.UpdateExpression, nil, u.ExpressionAttributeNames, u.ExpressionAttributeValues); err != nil {
				return nil, err
			}
		case ti.Delete != nil:
			pk, err := d.keyOf(*ti.Delete.TableName, ti.Delete.Key)
			if err != nil {
				return nil, err
			}
			delete(d.tables[*ti.Delete.TableName], pk)
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func transactTarget(ti types.TransactWriteItem) (string, item, *string, map[string]string, item) {
	switch {
	case ti.Put != nil:
		return deref(ti.Put.TableName), ti.Put.Item, ti.Put.ConditionExpression, ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues
	case ti.Update != nil:
		return deref(ti.Update.TableName), ti.Update.Key, ti.Update.ConditionExpression, ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues
	case ti.Delete != nil:
		return deref(ti.Delete.TableName), ti.Delete.Key, ti.Delete.ConditionExpression, ti.Delete.ExpressionAttributeNames, ti.Delete.ExpressionAttributeValues
	case ti.ConditionCheck != nil:
		return deref(ti.ConditionCheck.TableName), ti.ConditionCheck.Key, ti.ConditionCheck.ConditionExpression, ti.ConditionCheck.ExpressionAttributeNames, ti.ConditionCheck.ExpressionAttributeValues
	}
	return "", nil, nil, nil, nil
}

func evalCondition(expr string, it item, names map[string]string, values item) (bool, error) {
	for _, clause := range strings.Split(expr, " AND ") {
		clause = strings.TrimSpace(clause)
		ok, err := evalClause(clause, it, names, values)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalClause(clause string, it item, names map[string]string, values item) (bool, error) {
	if arg, ok := funcArg(clause, "attribute_not_exists"); ok {
		_, exists := it[resolveName(arg, names)]
		return !exists, nil
	}
	if arg, ok := funcArg(clause, "attribute_exists"); ok {
		_, exists := it[resolveName(arg, names)]
		return exists, nil
	}
	for _, op := range []string{"<>", "<=", ">=", "=", "<", ">"} {
		idx := strings.Index(clause, " "+op+" ")
		if idx < 0 {
			continue
		}
		lhs := resolveName(strings.TrimSpace(clause[:idx]), names)
		rhs := strings.TrimSpace(clause[idx+len(op)+2:])
		want, ok := values[rhs]
		if !ok {
			return false, fmt.Errorf("awstest: missing value %s", rhs)
		}
		got, ok := it[lhs]
		if !ok {
			return op == "<>", nil
		}
		cmp, err := compare(got, want)
		if err != nil {
			return false, err
		}
		switch op {
		case "=":
			return cmp == 0, nil
		case "<>":
			return cmp != 0, nil
		case "<":
			return cmp < 0, nil
		case "<=":
			return cmp <= 0, nil
		case ">":
			return cmp > 0, nil
		case ">=":
			return cmp >= 0, nil
		}
	}
	return false, fmt.Errorf("awstest: unsupported clause %q", clause)
}

func applyUpdate(expr string, it item, names map[string]string, values item) error {
	expr = strings.TrimSpace(expr)
	for expr != "" {
		var section string
		switch {
		case strings.HasPrefix(expr, "SET "):
			section, expr = splitSection(expr[4:])
			for _, assign := range strings.Split(section, ",") {
				parts := strings.SplitN(assign, "=", 2)
				if len(parts) != 2 {
					return fmt.Errorf("awstest: bad assignment %q", assign)
				}
				name := resolveName(strings.TrimSpace(parts[0]), names)
				ref := strings.TrimSpace(parts[1])
				v, ok := values[ref]
				if !ok {
					return fmt.Errorf("awstest: missing value %s", ref)
				}
				it[name] = v
			}
		case strings.HasPrefix(expr, "REMOVE "):
			section, expr = splitSection(expr[7:])
			for _, name := range strings.Split(section, ",") {
				delete(it, resolveName(strings.TrimSpace(name), names))
			}
		default:
			return fmt.Errorf("awstest: unsupported update %q", expr)
		}
		expr = strings.TrimSpace(expr)
	}
	return nil
}

func splitSection(s string) (string, string) {
	for _, kw := range []string{" SET ", " REMOVE "} {
		if idx := strings.Index(s, kw); idx >= 0 {
			return s[:idx], s[idx+1:]
		}
	}
	return s, ""
}

func funcArg(clause, fn string) (string, bool) {
	if !strings.HasPrefix(clause, fn+"(") || !strings.HasSuffix(clause, ")") {
		return "", false
	}
	return strings.TrimSpace(clause[len(fn)+1 : len(clause)-1]), true
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if n, ok := names[name]; ok {
			return n
		}
	}
	return name
}

func compare(a, b types.AttributeValue) (int, error) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, fmt.Errorf("awstest: type mismatch comparing %T and %T", a, b)
		}
		return strings.Compare(av.Value, bv.Value), nil
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, fmt.Errorf("awstest: type mismatch comparing %T and %T", a, b)
		}
		x, err := strconv.ParseFloat(av.Value, 64)
		if err != nil {
			return 0, err
		}
		y, err := strconv.ParseFloat(bv.Value, 64)
		if err != nil {
			return 0, err
		}
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok {
			return 0, fmt.Errorf("awstest: type mismatch comparing %T and %T", a, b)
		}
		if av.Value == bv.Value {
			return 0, nil
		}
		return 1, nil
	}
	return 0, fmt.Errorf("awstest: unsupported comparison type %T", a)
}

func copyItem(it item) item {
	if it == nil {
		return nil
	}
	out := make(item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string { return &s }
