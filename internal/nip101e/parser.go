package nip101e

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// Parser decodes raw Nostr events into typed domain entities.
//
// Raw tag arrays never escape this package: position and count convey
// meaning only by convention, so each kind gets a decoder that converts
// the arrays into typed values at the boundary and rejects malformed
// shapes immediately.
//
// Decode results are memoized per event id. Events are immutable once
// signed, so a successful decode never needs to be repeated.
type Parser struct {
	mu   sync.Mutex
	memo map[string]any
}

// memoLimit bounds the memo map. When reached, the map is dropped
// wholesale; re-decoding is cheap and correctness does not depend on
// the cache.
const memoLimit = 4096

// NewParser creates a Parser with an empty memo.
func NewParser() *Parser {
	return &Parser{memo: make(map[string]any)}
}

// Exercise decodes a kind-33401 event.
func (p *Parser) Exercise(ev *nostr.Event) (Exercise, error) {
	if cached, ok := p.lookup(ev.ID); ok {
		if ex, ok := cached.(Exercise); ok {
			return ex, nil
		}
	}
	ex, err := decodeExercise(ev)
	if err != nil {
		return Exercise{}, err
	}
	p.remember(ev.ID, ex)
	return ex, nil
}

// Template decodes a kind-33402 event.
func (p *Parser) Template(ev *nostr.Event) (WorkoutTemplate, error) {
	if cached, ok := p.lookup(ev.ID); ok {
		if t, ok := cached.(WorkoutTemplate); ok {
			return t, nil
		}
	}
	t, err := decodeTemplate(ev)
	if err != nil {
		return WorkoutTemplate{}, err
	}
	p.remember(ev.ID, t)
	return t, nil
}

// Collection decodes a kind-30003 event.
func (p *Parser) Collection(ev *nostr.Event) (Collection, error) {
	if cached, ok := p.lookup(ev.ID); ok {
		if c, ok := cached.(Collection); ok {
			return c, nil
		}
	}
	c, err := decodeCollection(ev)
	if err != nil {
		return Collection{}, err
	}
	p.remember(ev.ID, c)
	return c, nil
}

// Record decodes a kind-1301 event.
func (p *Parser) Record(ev *nostr.Event) (WorkoutRecord, error) {
	if cached, ok := p.lookup(ev.ID); ok {
		if r, ok := cached.(WorkoutRecord); ok {
			return r, nil
		}
	}
	r, err := decodeRecord(ev)
	if err != nil {
		return WorkoutRecord{}, err
	}
	p.remember(ev.ID, r)
	return r, nil
}

func (p *Parser) lookup(id string) (any, bool) {
	if id == "" {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.memo[id]
	return v, ok
}

func (p *Parser) remember(id string, v any) {
	if id == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.memo) >= memoLimit {
		p.memo = make(map[string]any)
	}
	p.memo[id] = v
}

// knownMuscleGroups is the hashtag vocabulary treated as muscle-group
// metadata rather than free-form tags.
var knownMuscleGroups = map[string]bool{
	"chest": true, "back": true, "shoulders": true, "biceps": true,
	"triceps": true, "forearms": true, "core": true, "abs": true,
	"glutes": true, "quads": true, "hamstrings": true, "calves": true,
	"legs": true, "arms": true, "full_body": true,
}

func decodeExercise(ev *nostr.Event) (Exercise, error) {
	if ev.Kind != KindExercise {
		return Exercise{}, fmt.Errorf("decode exercise: kind %d, want %d", ev.Kind, KindExercise)
	}

	d, ok := firstTagValue(ev, "d")
	if !ok || d == "" {
		return Exercise{}, fmt.Errorf("decode exercise %s: missing d tag", ev.ID)
	}
	title, ok := firstTagValue(ev, "title")
	if !ok || title == "" {
		return Exercise{}, fmt.Errorf("decode exercise %s: missing title tag", ev.ID)
	}
	format, ok := firstTagRest(ev, "format")
	if !ok || len(format) == 0 {
		return Exercise{}, fmt.Errorf("decode exercise %s: missing format tag", ev.ID)
	}
	units, ok := firstTagRest(ev, "format_units")
	if !ok {
		return Exercise{}, fmt.Errorf("decode exercise %s: missing format_units tag", ev.ID)
	}
	if len(units) != len(format) {
		return Exercise{}, fmt.Errorf("decode exercise %s: format_units has %d entries, format has %d",
			ev.ID, len(units), len(format))
	}
	equipment, ok := firstTagValue(ev, "equipment")
	if !ok {
		return Exercise{}, fmt.Errorf("decode exercise %s: missing equipment tag", ev.ID)
	}

	difficulty, _ := firstTagValue(ev, "difficulty")
	hashtags := allTagValues(ev, "t")

	var muscles []string
	for _, h := range hashtags {
		if knownMuscleGroups[h] {
			muscles = append(muscles, h)
		}
	}

	raw := make([][]string, len(ev.Tags))
	for i, tag := range ev.Tags {
		raw[i] = append([]string(nil), tag...)
	}

	return Exercise{
		ID:           d,
		Name:         title,
		Description:  ev.Content,
		Equipment:    equipment,
		Difficulty:   difficulty,
		MuscleGroups: muscles,
		Format:       format,
		FormatUnits:  units,
		Hashtags:     hashtags,
		AuthorPubkey: ev.PubKey,
		CreatedAt:    ev.CreatedAt.Time(),
		EventID:      ev.ID,
		RawTags:      raw,
	}, nil
}

func decodeTemplate(ev *nostr.Event) (WorkoutTemplate, error) {
	if ev.Kind != KindWorkoutTemplate {
		return WorkoutTemplate{}, fmt.Errorf("decode template: kind %d, want %d", ev.Kind, KindWorkoutTemplate)
	}

	d, ok := firstTagValue(ev, "d")
	if !ok || d == "" {
		return WorkoutTemplate{}, fmt.Errorf("decode template %s: missing d tag", ev.ID)
	}
	title, ok := firstTagValue(ev, "title")
	if !ok || title == "" {
		return WorkoutTemplate{}, fmt.Errorf("decode template %s: missing title tag", ev.ID)
	}
	typ, ok := firstTagValue(ev, "type")
	if !ok || typ == "" {
		return WorkoutTemplate{}, fmt.Errorf("decode template %s: missing type tag", ev.ID)
	}

	var sets []TemplateSet
	for _, tag := range ev.Tags {
		if len(tag) == 0 || tag[0] != "exercise" {
			continue
		}
		set, err := decodeTemplateSet(tag)
		if err != nil {
			return WorkoutTemplate{}, fmt.Errorf("decode template %s: %w", ev.ID, err)
		}
		sets = append(sets, set)
	}

	t := WorkoutTemplate{
		ID:           d,
		Name:         title,
		Description:  ev.Content,
		Type:         typ,
		Sets:         sets,
		Difficulty:   optionalTagValue(ev, "difficulty"),
		Hashtags:     allTagValues(ev, "t"),
		AuthorPubkey: ev.PubKey,
		CreatedAt:    ev.CreatedAt.Time(),
		EventID:      ev.ID,
	}

	var err error
	if t.Rounds, err = optionalIntTag(ev, "rounds"); err != nil {
		return WorkoutTemplate{}, fmt.Errorf("decode template %s: %w", ev.ID, err)
	}
	if t.EstimatedDuration, err = optionalSecondsTag(ev, "duration"); err != nil {
		return WorkoutTemplate{}, fmt.Errorf("decode template %s: %w", ev.ID, err)
	}
	if t.Interval, err = optionalSecondsTag(ev, "interval"); err != nil {
		return WorkoutTemplate{}, fmt.Errorf("decode template %s: %w", ev.ID, err)
	}
	if t.RestBetweenRounds, err = optionalSecondsTag(ev, "rest_between_rounds"); err != nil {
		return WorkoutTemplate{}, fmt.Errorf("decode template %s: %w", ev.ID, err)
	}
	if t.RestBetweenSets, err = optionalSecondsTag(ev, "rest_between_sets"); err != nil {
		return WorkoutTemplate{}, fmt.Errorf("decode template %s: %w", ev.ID, err)
	}

	return t, nil
}

// decodeTemplateSet decodes one exercise tag of a 33402 event:
// ["exercise", ref, relayUrl, param1..paramN, setNumber].
// The trailing element is always the set number; everything between the
// relay URL and the set number is positional parameters interpreted by
// the referenced exercise's format.
func decodeTemplateSet(tag nostr.Tag) (TemplateSet, error) {
	if len(tag) < 4 {
		return TemplateSet{}, fmt.Errorf("exercise tag has %d elements, want at least 4", len(tag))
	}

	ref, err := ParseRef(tag[1])
	if err != nil {
		return TemplateSet{}, fmt.Errorf("exercise tag: %w", err)
	}
	if ref.Kind != KindExercise {
		return TemplateSet{}, fmt.Errorf("exercise tag references kind %d, want %d", ref.Kind, KindExercise)
	}

	setNumber, err := strconv.Atoi(tag[len(tag)-1])
	if err != nil || setNumber < 1 {
		return TemplateSet{}, fmt.Errorf("exercise tag: bad set number %q", tag[len(tag)-1])
	}

	set := TemplateSet{
		ExerciseRef: ref,
		RelayURL:    tag[2],
		Params:      append([]string(nil), tag[3:len(tag)-1]...),
		SetNumber:   setNumber,
	}

	// The standard strength format is weight/reps/rpe/set_type; decode
	// those positions when the tag carries exactly four params.
	if len(set.Params) == 4 {
		if set.PrescribedWeight, err = parseFloatField("weight", set.Params[0]); err != nil {
			return TemplateSet{}, err
		}
		if set.PrescribedReps, err = parseIntField("reps", set.Params[1]); err != nil {
			return TemplateSet{}, err
		}
		if set.PrescribedRPE, err = parseFloatField("rpe", set.Params[2]); err != nil {
			return TemplateSet{}, err
		}
		set.PrescribedSetType = set.Params[3]
	}

	return set, nil
}

func decodeCollection(ev *nostr.Event) (Collection, error) {
	if ev.Kind != KindCollection {
		return Collection{}, fmt.Errorf("decode collection: kind %d, want %d", ev.Kind, KindCollection)
	}

	d, ok := firstTagValue(ev, "d")
	if !ok || d == "" {
		return Collection{}, fmt.Errorf("decode collection %s: missing d tag", ev.ID)
	}
	name := optionalTagValue(ev, "title")
	if name == "" {
		name = d
	}

	var refs []Ref
	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[0] != "a" {
			continue
		}
		ref, err := ParseRef(tag[1])
		if err != nil {
			return Collection{}, fmt.Errorf("decode collection %s: %w", ev.ID, err)
		}
		refs = append(refs, ref)
	}

	return Collection{
		ID:           d,
		Name:         name,
		ContentRefs:  refs,
		AuthorPubkey: ev.PubKey,
		CreatedAt:    ev.CreatedAt.Time(),
		EventID:      ev.ID,
	}, nil
}

func decodeRecord(ev *nostr.Event) (WorkoutRecord, error) {
	if ev.Kind != KindWorkoutRecord {
		return WorkoutRecord{}, fmt.Errorf("decode record: kind %d, want %d", ev.Kind, KindWorkoutRecord)
	}

	d, ok := firstTagValue(ev, "d")
	if !ok || d == "" {
		return WorkoutRecord{}, fmt.Errorf("decode record %s: missing d tag", ev.ID)
	}
	title, ok := firstTagValue(ev, "title")
	if !ok || title == "" {
		return WorkoutRecord{}, fmt.Errorf("decode record %s: missing title tag", ev.ID)
	}
	typ, ok := firstTagValue(ev, "type")
	if !ok || typ == "" {
		return WorkoutRecord{}, fmt.Errorf("decode record %s: missing type tag", ev.ID)
	}

	start, err := requiredUnixTag(ev, "start")
	if err != nil {
		return WorkoutRecord{}, fmt.Errorf("decode record %s: %w", ev.ID, err)
	}
	end, err := requiredUnixTag(ev, "end")
	if err != nil {
		return WorkoutRecord{}, fmt.Errorf("decode record %s: %w", ev.ID, err)
	}
	completedStr, ok := firstTagValue(ev, "completed")
	if !ok || (completedStr != "true" && completedStr != "false") {
		return WorkoutRecord{}, fmt.Errorf("decode record %s: completed tag must be \"true\" or \"false\"", ev.ID)
	}

	var sets []RecordSet
	for _, tag := range ev.Tags {
		if len(tag) == 0 || tag[0] != "exercise" {
			continue
		}
		set, err := decodeRecordSet(tag)
		if err != nil {
			return WorkoutRecord{}, fmt.Errorf("decode record %s: %w", ev.ID, err)
		}
		sets = append(sets, set)
	}

	var templateRef *Ref
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == "template" {
			ref, err := ParseRef(tag[1])
			if err != nil {
				return WorkoutRecord{}, fmt.Errorf("decode record %s: template tag: %w", ev.ID, err)
			}
			templateRef = &ref
			break
		}
	}

	return WorkoutRecord{
		ID:           d,
		Title:        title,
		Type:         typ,
		Start:        start,
		End:          end,
		Completed:    completedStr == "true",
		Sets:         sets,
		TemplateRef:  templateRef,
		Hashtags:     allTagValues(ev, "t"),
		AuthorPubkey: ev.PubKey,
		CreatedAt:    ev.CreatedAt.Time(),
		EventID:      ev.ID,
	}, nil
}

// decodeRecordSet decodes one exercise tag of a 1301 event:
// ["exercise", ref, relayUrl, weight, reps, rpe, setType, setNumber].
func decodeRecordSet(tag nostr.Tag) (RecordSet, error) {
	if len(tag) != 8 {
		return RecordSet{}, fmt.Errorf("exercise tag has %d elements, want 8", len(tag))
	}

	ref, err := ParseRef(tag[1])
	if err != nil {
		return RecordSet{}, fmt.Errorf("exercise tag: %w", err)
	}

	set := RecordSet{ExerciseRef: ref, RelayURL: tag[2], SetType: tag[6]}
	if set.Weight, err = parseFloatField("weight", tag[3]); err != nil {
		return RecordSet{}, err
	}
	if set.Reps, err = parseIntField("reps", tag[4]); err != nil {
		return RecordSet{}, err
	}
	if set.RPE, err = parseFloatField("rpe", tag[5]); err != nil {
		return RecordSet{}, err
	}
	if set.SetNumber, err = parseIntField("set number", tag[7]); err != nil {
		return RecordSet{}, err
	}
	return set, nil
}

func firstTagValue(ev *nostr.Event, name string) (string, bool) {
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1], true
		}
	}
	return "", false
}

func firstTagRest(ev *nostr.Event, name string) ([]string, bool) {
	for _, tag := range ev.Tags {
		if len(tag) >= 1 && tag[0] == name {
			return append([]string(nil), tag[1:]...), true
		}
	}
	return nil, false
}

func optionalTagValue(ev *nostr.Event, name string) string {
	v, _ := firstTagValue(ev, name)
	return v
}

func allTagValues(ev *nostr.Event, name string) []string {
	var values []string
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == name {
			values = append(values, tag[1])
		}
	}
	return values
}

func optionalIntTag(ev *nostr.Event, name string) (int, error) {
	v, ok := firstTagValue(ev, name)
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("bad %s tag %q: %w", name, v, err)
	}
	return n, nil
}

func optionalSecondsTag(ev *nostr.Event, name string) (time.Duration, error) {
	n, err := optionalIntTag(ev, name)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func requiredUnixTag(ev *nostr.Event, name string) (time.Time, error) {
	v, ok := firstTagValue(ev, name)
	if !ok {
		return time.Time{}, fmt.Errorf("missing %s tag", name)
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad %s tag %q: %w", name, v, err)
	}
	return time.Unix(secs, 0).UTC(), nil
}

// parseFloatField parses a numeric tag position. Empty strings decode
// as zero: published events omit values the author never entered.
func parseFloatField(field, v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s value %q: %w", field, v, err)
	}
	return f, nil
}

func parseIntField(field, v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("bad %s value %q: %w", field, v, err)
	}
	return n, nil
}
