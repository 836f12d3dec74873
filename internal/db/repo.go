package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"vetbox-triage/internal/casestore"
	"vetbox-triage/internal/rules"
)

// Repository reads and writes the triage rule base.
// The caller is responsible for managing the DB connection lifecycle.
type Repository struct {
	DB *sql.DB
}

// NewRepository constructs a new Repository from an existing sql.DB.
func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

const loadRulesQuery = `
SELECT r.id, r.rule_code, r.priority, r.rationale,
       c.condition_type, s.code, c.symptom_ids, c.logic_type,
       sl.code, a.code, ps.code, c.operator, c.value
FROM rules r
LEFT JOIN rule_conditions c ON c.rule_id = r.id
LEFT JOIN symptoms s ON s.id = c.symptom_id
LEFT JOIN slot_names sl ON sl.id = c.slot_name_id
LEFT JOIN patient_attributes a ON a.id = c.attribute_id
LEFT JOIN symptoms ps ON ps.id = c.parent_symptom_id
ORDER BY r.id, c.position, c.id`

// LoadRules reads every rule with its conditions in stored order.  Symptom
// id arrays are resolved to codes and the rules are normalised.
func (r *Repository) LoadRules(ctx context.Context) ([]rules.Rule, error) {
	codes, err := r.symptomCodes(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.QueryContext(ctx, loadRulesQuery)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []rules.Rule
	for rows.Next() {
		var (
			id                                 int
			code, priority, rationale          string
			condType, symptom, logic           sql.NullString
			slot, attribute, parent, op, value sql.NullString
			symptomIDs                         []int64
		)
		if err := rows.Scan(&id, &code, &priority, &rationale,
			&condType, &symptom, pq.Array(&symptomIDs), &logic,
			&slot, &attribute, &parent, &op, &value); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].ID != id {
			out = append(out, rules.Rule{ID: id, RuleCode: code, Priority: priority, Rationale: rationale})
		}
		if !condType.Valid {
			continue
		}

		cond := rules.Condition{
			Type:          rules.ConditionType(condType.String),
			Symptom:       symptom.String,
			LogicType:     rules.LogicType(logic.String),
			Slot:          slot.String,
			Attribute:     attribute.String,
			ParentSymptom: parent.String,
			Operator:      rules.Operator(op.String),
		}
		for _, sid := range symptomIDs {
			if c, ok := codes[sid]; ok {
				cond.Symptoms = append(cond.Symptoms, c)
			}
		}
		if value.Valid {
			cond.Value = value.String
		}
		last := &out[len(out)-1]
		last.Conditions = append(last.Conditions, cond)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	for i := range out {
		out[i].Normalize()
	}
	return out, nil
}

func (r *Repository) symptomCodes(ctx context.Context) (map[int64]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, code FROM symptoms`)
	if err != nil {
		return nil, fmt.Errorf("query symptoms: %w", err)
	}
	defer rows.Close()
	codes := make(map[int64]string)
	for rows.Next() {
		var id int64
		var code string
		if err := rows.Scan(&id, &code); err != nil {
			return nil, fmt.Errorf("scan symptom: %w", err)
		}
		codes[id] = code
	}
	return codes, rows.Err()
}

// SeedRules stores rules in one transaction and returns how many were
// inserted.  Rules whose rule_code already exists are skipped; vocabulary
// rows (symptoms, slots, attributes) are created on first use.
func (r *Repository) SeedRules(ctx context.Context, rs []rules.Rule) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, rule := range rs {
		var existing int
		err := tx.QueryRowContext(ctx, `SELECT id FROM rules WHERE rule_code = $1`, rule.RuleCode).Scan(&existing)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("lookup rule %s: %w", rule.RuleCode, err)
		}

		var ruleID int
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO rules (rule_code, priority, rationale) VALUES ($1, $2, $3) RETURNING id`,
			rule.RuleCode, rule.Priority, rule.Rationale,
		).Scan(&ruleID); err != nil {
			return 0, fmt.Errorf("insert rule %s: %w", rule.RuleCode, err)
		}
		for pos, cond := range rule.Conditions {
			if err := insertCondition(ctx, tx, ruleID, pos, cond); err != nil {
				return 0, fmt.Errorf("rule %s condition %d: %w", rule.RuleCode, pos, err)
			}
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func insertCondition(ctx context.Context, tx *sql.Tx, ruleID, pos int, c rules.Condition) error {
	var (
		symptomID, slotID, attrID, parentID sql.NullInt64
		symptomIDs                          any
		logic, op                           sql.NullString
	)
	switch c.Type {
	case rules.ConditionSymptom:
		ids := make([]int64, 0, len(c.Symptoms))
		for _, code := range c.Symptoms {
			id, err := vocabularyID(ctx, tx, "symptoms", code)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		if len(ids) == 1 {
			symptomID = sql.NullInt64{Int64: ids[0], Valid: true}
		} else if len(ids) > 1 {
			symptomIDs = pq.Array(ids)
		}
		logic = sql.NullString{String: string(c.LogicType), Valid: c.LogicType != ""}
	case rules.ConditionSlot:
		id, err := vocabularyID(ctx, tx, "slot_names", c.Slot)
		if err != nil {
			return err
		}
		slotID = sql.NullInt64{Int64: id, Valid: true}
		if id, err = vocabularyID(ctx, tx, "symptoms", c.ParentSymptom); err != nil {
			return err
		}
		parentID = sql.NullInt64{Int64: id, Valid: true}
	case rules.ConditionAttribute:
		id, err := vocabularyID(ctx, tx, "patient_attributes", c.Attribute)
		if err != nil {
			return err
		}
		attrID = sql.NullInt64{Int64: id, Valid: true}
	}
	if c.Operator != "" {
		op = sql.NullString{String: string(c.Operator), Valid: true}
	}
	value, err := encodeValue(c.Value)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO rule_conditions
    (rule_id, position, condition_type, symptom_id, symptom_ids, logic_type,
     slot_name_id, attribute_id, parent_symptom_id, operator, value)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ruleID, pos, string(c.Type), symptomID, symptomIDs, logic,
		slotID, attrID, parentID, op, value,
	)
	if err != nil {
		return fmt.Errorf("insert condition: %w", err)
	}
	return nil
}

// vocabularyID returns the id of code in table, creating the row if needed.
func vocabularyID(ctx context.Context, tx *sql.Tx, table, code string) (int64, error) {
	key := casestore.Key(code)
	if key == "" {
		return 0, fmt.Errorf("empty %s code", table)
	}
	q := fmt.Sprintf(`INSERT INTO %s (code, display_name) VALUES ($1, $2)
ON CONFLICT (code) DO UPDATE SET code = EXCLUDED.code
RETURNING id`, pq.QuoteIdentifier(table))
	var id int64
	if err := tx.QueryRowContext(ctx, q, key, displayName(key)).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert %s %s: %w", table, key, err)
	}
	return id, nil
}

// encodeValue stores lists as JSON text and scalars as plain text.
func encodeValue(v any) (sql.NullString, error) {
	switch val := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case []string:
		raw, err := json.Marshal(val)
		if err != nil {
			return sql.NullString{}, fmt.Errorf("encode value: %w", err)
		}
		return sql.NullString{String: string(raw), Valid: true}, nil
	}
	return sql.NullString{String: casestore.Stringify(v), Valid: true}, nil
}

func displayName(code string) string {
	s := strings.ToLower(strings.ReplaceAll(code, "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
