package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/samber/lo"

	"health-agent/internal/domain"
)

const (
	skProfile        = "PROFILE"
	skPrefixBMI      = "BMI#"
	skPrefixActivity = "ACTIVITY#"
	skPrefixSummary  = "SUMMARY#"

	// DynamoDB caps a transaction at 100 items.
	maxTransactItems = 100
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client stores every record of a user under one partition:
//
//	PK=USER#<id>  SK=PROFILE | BMI#<date> | ACTIVITY#<date> | SUMMARY#<date>
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func userPK(userID int64) string {
	return "USER#" + strconv.FormatInt(userID, 10)
}

func (c *Client) key(userID int64, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// GetUserContext returns nil, nil when the user has no profile item.
func (c *Client) GetUserContext(ctx context.Context, userID int64, day string) (*domain.UserContext, error) {
	profile, err := c.getItem(ctx, userID, skProfile)
	if err != nil {
		return nil, fmt.Errorf("repository: GetUserContext profile: %w", err)
	}
	if profile == nil {
		return nil, nil
	}

	uc := &domain.UserContext{Profile: itemToProfile(userID, profile)}
	if uc.LatestBMI, err = c.LatestBMI(ctx, userID); err != nil {
		return nil, fmt.Errorf("repository: GetUserContext: %w", err)
	}

	activity, err := c.getItem(ctx, userID, skPrefixActivity+day)
	if err != nil {
		return nil, fmt.Errorf("repository: GetUserContext activity: %w", err)
	}
	if activity != nil {
		rec := itemToActivity(userID, day, activity)
		uc.TodayActivity = &rec
	}

	summary, err := c.latest(ctx, userID, skPrefixSummary)
	if err != nil {
		return nil, fmt.Errorf("repository: GetUserContext summary: %w", err)
	}
	if summary != nil {
		rec := itemToSummary(userID, summary)
		uc.LatestSummary = &rec
	}
	return uc, nil
}

// EnsureUser creates an empty profile item unless one exists.
func (c *Client) EnsureUser(ctx context.Context, userID int64) error {
	item := c.key(userID, skProfile)
	item["userId"] = numberAttr(strconv.FormatInt(userID, 10))
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	var exists *types.ConditionalCheckFailedException
	if err != nil && !errors.As(err, &exists) {
		return fmt.Errorf("repository: EnsureUser: %w", err)
	}
	return nil
}

// UpsertProfile sets the non-nil identity fields of delta.
func (c *Client) UpsertProfile(ctx context.Context, userID int64, delta domain.ProfileDelta) error {
	u := newUpdate()
	u.setNumber("userId", strconv.FormatInt(userID, 10))
	u.setString("name", delta.Name)
	u.setString("dob", delta.DOB)
	u.setString("gender", delta.Gender)
	u.setString("occupation", delta.Occupation)
	u.setString("description", delta.Description)
	u.setString("chronicDisease", delta.ChronicDisease)
	if err := c.update(ctx, userID, skProfile, u); err != nil {
		return fmt.Errorf("repository: UpsertProfile: %w", err)
	}
	return nil
}

// LatestBMI returns the most recent BMI record, or nil.
func (c *Client) LatestBMI(ctx context.Context, userID int64) (*domain.BMIRecord, error) {
	item, err := c.latest(ctx, userID, skPrefixBMI)
	if err != nil {
		return nil, fmt.Errorf("repository: LatestBMI: %w", err)
	}
	if item == nil {
		return nil, nil
	}
	rec := itemToBMI(userID, item)
	return &rec, nil
}

func (c *Client) UpsertBMI(ctx context.Context, rec domain.BMIRecord) error {
	u := newUpdate()
	u.setDate(rec.UserID, rec.Date)
	u.setFloat("weight", rec.Weight)
	u.setFloat("height", rec.Height)
	if err := c.update(ctx, rec.UserID, skPrefixBMI+rec.Date, u); err != nil {
		return fmt.Errorf("repository: UpsertBMI: %w", err)
	}
	return nil
}

func (c *Client) UpsertActivity(ctx context.Context, rec domain.ActivityRecord) error {
	u := newUpdate()
	u.setDate(rec.UserID, rec.Date)
	u.setInt("steps", rec.Steps)
	u.setFloat("sleepHours", rec.SleepHours)
	u.setInt("caloriesBurned", rec.CaloriesBurned)
	u.setInt("avgHeartRate", rec.AvgHeartRate)
	u.setInt("activeMinutes", rec.ActiveMinutes)
	if err := c.update(ctx, rec.UserID, skPrefixActivity+rec.Date, u); err != nil {
		return fmt.Errorf("repository: UpsertActivity: %w", err)
	}
	return nil
}

func (c *Client) UpsertSummary(ctx context.Context, rec domain.SummaryRecord) error {
	risk := string(rec.OfficeRisk)
	u := newUpdate()
	u.setDate(rec.UserID, rec.Date)
	u.setString("overview", &rec.Overview)
	u.setString("officeRisk", &risk)
	u.setString("officeSummary", &rec.OfficeSummary)
	if err := c.update(ctx, rec.UserID, skPrefixSummary+rec.Date, u); err != nil {
		return fmt.Errorf("repository: UpsertSummary: %w", err)
	}
	return nil
}

// DeleteUser removes every item in the user's partition.
func (c *Client) DeleteUser(ctx context.Context, userID int64) error {
	var keys []map[string]types.AttributeValue
	var start map[string]types.AttributeValue
	for {
		out, err := c.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(c.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: userPK(userID)},
			},
			ProjectionExpression: aws.String("PK, SK"),
			ExclusiveStartKey:    start,
		})
		if err != nil {
			return fmt.Errorf("repository: DeleteUser query: %w", err)
		}
		keys = append(keys, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		start = out.LastEvaluatedKey
	}

	for _, chunk := range lo.Chunk(keys, maxTransactItems) {
		items := lo.Map(chunk, func(k map[string]types.AttributeValue, _ int) types.TransactWriteItem {
			return types.TransactWriteItem{Delete: &types.Delete{
				TableName: aws.String(c.tableName),
				Key:       map[string]types.AttributeValue{"PK": k["PK"], "SK": k["SK"]},
			}}
		})
		if _, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
			return fmt.Errorf("repository: DeleteUser: %w", err)
		}
	}
	return nil
}

func (c *Client) getItem(ctx context.Context, userID int64, sk string) (map[string]types.AttributeValue, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.key(userID, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

// latest returns the item with the greatest date under prefix. Dates are
// YYYY-MM-DD so they sort lexically.
func (c *Client) latest(ctx context.Context, userID int64, prefix string) (map[string]types.AttributeValue, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: userPK(userID)},
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Items) == 0 {
		return nil, nil
	}
	return out.Items[0], nil
}

func (c *Client) update(ctx context.Context, userID int64, sk string, u *update) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.tableName),
		Key:                       c.key(userID, sk),
		UpdateExpression:          aws.String(u.expression()),
		ExpressionAttributeNames:  u.names,
		ExpressionAttributeValues: u.values,
	})
	return err
}

// update accumulates a SET expression over the provided attributes only,
// so absent fields keep their stored values.
type update struct {
	sets   []string
	names  map[string]string
	values map[string]types.AttributeValue
}

func newUpdate() *update {
	return &update{names: map[string]string{}, values: map[string]types.AttributeValue{}}
}

func (u *update) set(attr string, v types.AttributeValue) {
	n := strconv.Itoa(len(u.sets))
	u.names["#a"+n] = attr
	u.values[":v"+n] = v
	u.sets = append(u.sets, "#a"+n+" = :v"+n)
}

func (u *update) setString(attr string, v *string) {
	if v != nil {
		u.set(attr, &types.AttributeValueMemberS{Value: *v})
	}
}

func (u *update) setFloat(attr string, v *float64) {
	if v != nil {
		u.set(attr, numberAttr(strconv.FormatFloat(*v, 'f', -1, 64)))
	}
}

func (u *update) setInt(attr string, v *int) {
	if v != nil {
		u.set(attr, numberAttr(strconv.Itoa(*v)))
	}
}

func (u *update) setNumber(attr, v string) {
	u.set(attr, numberAttr(v))
}

func (u *update) setDate(userID int64, date string) {
	u.setNumber("userId", strconv.FormatInt(userID, 10))
	u.set("date", &types.AttributeValueMemberS{Value: date})
}

func (u *update) expression() string {
	return "SET " + strings.Join(u.sets, ", ")
}

func numberAttr(v string) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: v}
}

func itemToProfile(userID int64, item map[string]types.AttributeValue) domain.UserProfile {
	return domain.UserProfile{
		UserID:         userID,
		Name:           optStrAttr(item, "name"),
		DOB:            optStrAttr(item, "dob"),
		Gender:         optStrAttr(item, "gender"),
		Occupation:     optStrAttr(item, "occupation"),
		Description:    optStrAttr(item, "description"),
		ChronicDisease: optStrAttr(item, "chronicDisease"),
	}
}

func itemToBMI(userID int64, item map[string]types.AttributeValue) domain.BMIRecord {
	return domain.BMIRecord{
		UserID: userID,
		Date:   dateFromSK(item, skPrefixBMI),
		Weight: optFloatAttr(item, "weight"),
		Height: optFloatAttr(item, "height"),
	}
}

func itemToActivity(userID int64, date string, item map[string]types.AttributeValue) domain.ActivityRecord {
	return domain.ActivityRecord{
		UserID:         userID,
		Date:           date,
		Steps:          optIntAttr(item, "steps"),
		SleepHours:     optFloatAttr(item, "sleepHours"),
		CaloriesBurned: optIntAttr(item, "caloriesBurned"),
		AvgHeartRate:   optIntAttr(item, "avgHeartRate"),
		ActiveMinutes:  optIntAttr(item, "activeMinutes"),
	}
}

func itemToSummary(userID int64, item map[string]types.AttributeValue) domain.SummaryRecord {
	return domain.SummaryRecord{
		UserID: userID,
		Date:   dateFromSK(item, skPrefixSummary),
		HealthSummary: domain.HealthSummary{
			Overview:      lo.FromPtr(optStrAttr(item, "overview")),
			OfficeRisk:    domain.OfficeRisk(lo.FromPtr(optStrAttr(item, "officeRisk"))),
			OfficeSummary: lo.FromPtr(optStrAttr(item, "officeSummary")),
		},
	}
}

func dateFromSK(item map[string]types.AttributeValue, prefix string) string {
	sk, err := strAttr(item, "SK")
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(sk, prefix)
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func optStrAttr(item map[string]types.AttributeValue, key string) *string {
	s, err := strAttr(item, key)
	if err != nil {
		return nil
	}
	return &s
}

func optFloatAttr(item map[string]types.AttributeValue, key string) *float64 {
	n, ok := item[key].(*types.AttributeValueMemberN)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(n.Value, 64)
	if err != nil {
		return nil
	}
	return &f
}

func optIntAttr(item map[string]types.AttributeValue, key string) *int {
	n, ok := item[key].(*types.AttributeValueMemberN)
	if !ok {
		return nil
	}
	i, err := strconv.Atoi(n.Value)
	if err != nil {
		return nil
	}
	return &i
}

