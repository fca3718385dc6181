package ldtable

import (
	"fmt"
	"iter"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// M is the record type used in mapping mode: an attribute-name-to-value
// dictionary. Object mode records may be any addressable struct instead.
type M = map[string]any

type defaultSpec struct {
	has      bool
	constant any
	fn       func() any
}

func (d defaultSpec) value() (any, bool) {
	if !d.has {
		return nil, false
	}
	if d.fn != nil {
		return d.fn(), true
	}
	return d.constant, true
}

func makeDefaultSpec(v any) defaultSpec {
	if fn, ok := v.(func() any); ok {
		return defaultSpec{has: true, fn: fn}
	}
	return defaultSpec{has: true, constant: v}
}

// Table is an in-memory, schemaless table of records with an inverted index
// over indexed attributes and a composable boolean query algebra. It is not
// safe for concurrent mutation; concurrent read-only access is safe
// provided no mutation runs at the same time (enforcement is the host's
// responsibility).
type Table struct {
	mu sync.RWMutex

	store recordStore
	idx   *invertedIndex
	acc   accessor

	fixedAttrs bool
	allowList  map[string]struct{}
	excluded   map[string]struct{}

	defaultAttr defaultSpec

	objectMode       bool
	indexObjects     bool
	alwaysReturnList bool

	epoch uint64

	log *zap.Logger
	id  uuid.UUID
}

type config struct {
	initial          []any
	attrs            []string
	excluded         []string
	defaultAttr      defaultSpec
	objectMode       bool
	indexObjects     bool
	alwaysReturnList bool
	logger           *zap.Logger
}

// Option configures a Table at construction.
type Option func(*config)

// WithInitialRecords adds records at construction, in order, exactly as
// repeated calls to Add would.
func WithInitialRecords(records ...any) Option {
	return func(c *config) { c.initial = append(c.initial, records...) }
}

// WithAttributes limits the attributes Add indexes to attrs. Unknown
// attributes encountered on added records are ignored rather than
// auto-added; AddAttribute does not consult this list and can still add an
// attribute outside it.
func WithAttributes(attrs ...string) Option {
	return func(c *config) { c.attrs = append(c.attrs, attrs...) }
}

// WithExcludedAttributes marks attrs as forbidden from indexing. AddAttribute,
// Reindex and Update fail with ErrExcludedAttribute when asked to touch one;
// Add skips one carried by a record without failing.
func WithExcludedAttributes(attrs ...string) Option {
	return func(c *config) { c.excluded = append(c.excluded, attrs...) }
}

// WithDefaultAttribute supplies a fallback value for attributes missing on
// a record during post or back-fill. Pass a func() any for a value computed
// per slot; anything else is used as a constant.
func WithDefaultAttribute(v any) Option {
	return func(c *config) { c.defaultAttr = makeDefaultSpec(v) }
}

// WithObjectMode switches the table to object mode: records are pointers to
// structs, attributes are exported field names reached via reflection.
func WithObjectMode() Option {
	return func(c *config) { c.objectMode = true }
}

// WithIndexObjects, in object mode, lets Add auto-discover new attributes
// from a record's exported fields the same way mapping mode does.
func WithIndexObjects() Option {
	return func(c *config) { c.indexObjects = true }
}

// WithAlwaysReturnList makes Query eagerly materialize its result instead of
// resolving records lazily on iteration.
func WithAlwaysReturnList() Option {
	return func(c *config) { c.alwaysReturnList = true }
}

// WithLogger attaches a zap logger; state-changing operations (back-fill,
// reindex, rejected mutations) log at Debug. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

func toSet(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, s := range list {
		out[s] = struct{}{}
	}
	return out
}

// New constructs a Table per the given options.
func New(opts ...Option) (*Table, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}

	t := &Table{
		idx: newInvertedIndex(),
		id:  uuid.New(),
	}
	if cfg.logger != nil {
		t.log = cfg.logger.Named("ldtable").With(zap.String("instance", t.id.String()))
	} else {
		t.log = zap.NewNop()
	}
	t.objectMode = cfg.objectMode
	t.indexObjects = cfg.indexObjects
	t.alwaysReturnList = cfg.alwaysReturnList
	t.defaultAttr = cfg.defaultAttr
	t.excluded = toSet(cfg.excluded)

	if t.objectMode {
		t.acc = objectAccessor{}
	} else {
		t.acc = mapAccessor{}
	}

	if len(cfg.attrs) > 0 {
		t.fixedAttrs = true
		t.allowList = toSet(cfg.attrs)
		for a := range t.allowList {
			t.idx.ensureAttribute(a)
		}
	}

	for _, rec := range cfg.initial {
		if _, err := t.addOneLocked(rec); err != nil {
			return nil, err
		}
	}

	t.log.Debug("table created", zap.Bool("objectMode", t.objectMode))
	return t, nil
}

func (t *Table) isExcluded(attr string) bool {
	_, ok := t.excluded[attr]
	return ok
}

func (t *Table) allowed(attr string) bool {
	if !t.fixedAttrs {
		return true
	}
	_, ok := t.allowList[attr]
	return ok
}

func (t *Table) bumpEpoch() {
	t.epoch++
}

// liveSet returns every currently live slot id. It is the universe U that
// Eq/Cmp/Not resolve against.
func (t *Table) liveSet() slotSet {
	out := newSlotSet()
	t.store.iterLive(func(id SlotID, _ any) bool {
		out.add(id)
		return true
	})
	return out
}

// computeAttributeValues resolves the value attr would take for every
// currently live slot, using override when a slot lacks the attribute, then
// falling back to the table's configured default. It mutates nothing; a
// missing value with no fallback aborts with ErrMissingAttribute before any
// index state changes, preserving add/reindex atomicity.
func (t *Table) computeAttributeValues(attr string, override defaultSpec) (map[SlotID]any, error) {
	return t.computeAttributeValuesFallback(attr, override, false)
}

// computeAttributeValuesFallback is computeAttributeValues with an extra,
// lowest-priority fallback: when nilOnMissing is set, a slot that has
// neither its own value, an override, nor a table default gets nil instead
// of aborting. Add's implicit attribute discovery uses this so a
// heterogeneous record can introduce an attribute with no default
// configured, matching the documented back-fill-with-nil behavior; the
// explicit AddAttribute/Reindex paths call computeAttributeValues directly
// and keep failing hard.
func (t *Table) computeAttributeValuesFallback(attr string, override defaultSpec, nilOnMissing bool) (map[SlotID]any, error) {
	values := make(map[SlotID]any)
	var failErr error
	t.store.iterLive(func(id SlotID, record any) bool {
		v, ok := t.acc.get(record, attr)
		if !ok {
			if dv, has := override.value(); has {
				v = dv
			} else if dv, has := t.defaultAttr.value(); has {
				v = dv
			} else if nilOnMissing {
				v = nil
			} else {
				failErr = fmt.Errorf("ldtable: attribute %q missing on slot %d: %w", attr, id, ErrMissingAttribute)
				return false
			}
		}
		values[id] = v
		return true
	})
	if failErr != nil {
		return nil, failErr
	}
	return values, nil
}

// normalizeAttributeValues normalizes every value in values, failing before
// any index state changes if one can't be normalized.
func normalizeAttributeValues(values map[SlotID]any) (map[SlotID][]any, error) {
	keys := make(map[SlotID][]any, len(values))
	for id, v := range values {
		k, err := normalize(v)
		if err != nil {
			return nil, err
		}
		keys[id] = k
	}
	return keys, nil
}

// installAttribute clears and reposts attr's posting table from values.
func (t *Table) installAttribute(attr string, values map[SlotID]any) error {
	keys, err := normalizeAttributeValues(values)
	if err != nil {
		return err
	}
	t.installAttributeKeys(attr, keys)
	return nil
}

// installAttributeKeys clears and reposts attr's posting table from
// already-normalized keys, never failing.
func (t *Table) installAttributeKeys(attr string, keys map[SlotID][]any) {
	t.idx.ensureAttribute(attr)
	t.idx.clearAttribute(attr)
	for id, k := range keys {
		t.idx.post(attr, id, k)
	}
}

// AddAttribute eagerly posts every live slot under attr, back-filling slots
// that lack it from def (if given) or the table's default. Supplying no def
// and finding a slot without attr and without a table default fails with
// ErrMissingAttribute, leaving the table unchanged.
func (t *Table) AddAttribute(attr string, def ...any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.isExcluded(attr) {
		t.log.Debug("attribute add rejected: excluded", zap.String("attr", attr))
		return fmt.Errorf("ldtable: attribute %q: %w", attr, ErrExcludedAttribute)
	}

	var override defaultSpec
	if len(def) > 0 {
		override = makeDefaultSpec(def[0])
	}

	values, err := t.computeAttributeValues(attr, override)
	if err != nil {
		return err
	}
	if err := t.installAttribute(attr, values); err != nil {
		return err
	}
	t.bumpEpoch()
	t.log.Debug("attribute added", zap.String("attr", attr), zap.Int("slots", len(values)))
	return nil
}

// Reindex rebuilds the posting lists for the given attributes (or every
// known attribute, if none are named) from the current record store.
func (t *Table) Reindex(attrs ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(attrs) == 0 {
		attrs = t.idx.knownAttributes()
	}
	for _, a := range attrs {
		if t.isExcluded(a) {
			t.log.Debug("reindex rejected: excluded", zap.String("attr", a))
			return fmt.Errorf("ldtable: attribute %q: %w", a, ErrExcludedAttribute)
		}
	}
	// Compute and normalize every attribute's new posting keys before
	// installing any of them, so a failure partway through (a live slot
	// missing a value with no default, or an unhashable value) leaves the
	// table completely untouched instead of half-reindexed.
	computed := make(map[string]map[SlotID][]any, len(attrs))
	for _, a := range attrs {
		values, err := t.computeAttributeValues(a, defaultSpec{})
		if err != nil {
			return err
		}
		keys, err := normalizeAttributeValues(values)
		if err != nil {
			return err
		}
		computed[a] = keys
	}
	for _, a := range attrs {
		t.installAttributeKeys(a, computed[a])
	}
	t.bumpEpoch()
	t.log.Debug("reindexed", zap.Strings("attrs", attrs))
	return nil
}

// addOneLocked appends item to the store, auto-discovering and back-filling
// any new attributes it introduces before mutating anything else. Caller
// must hold the write lock (or be the single-threaded constructor).
func (t *Table) addOneLocked(item any) (SlotID, error) {
	known := toSet(t.idx.knownAttributes())

	var discovered []string
	canDiscover := !t.objectMode || t.indexObjects
	if canDiscover {
		attrs, err := t.acc.attrs(item)
		if err != nil {
			return 0, err
		}
		for _, a := range attrs {
			if _, ok := known[a]; ok {
				continue
			}
			if t.isExcluded(a) || !t.allowed(a) {
				continue
			}
			discovered = append(discovered, a)
		}
	}

	// A newly discovered attribute back-fills every existing live slot that
	// lacks it, from the table's configured default if one exists or nil
	// otherwise — a heterogeneous Add never fails just because an earlier
	// record didn't carry the attribute. Only the explicit
	// AddAttribute/Reindex paths require a configured default and fail hard
	// without one.
	backfills := make(map[string]map[SlotID]any, len(discovered))
	for _, attr := range discovered {
		values, err := t.computeAttributeValuesFallback(attr, defaultSpec{}, true)
		if err != nil {
			return 0, err
		}
		backfills[attr] = values
	}

	finalAttrs := make([]string, 0, len(known)+len(discovered))
	for a := range known {
		finalAttrs = append(finalAttrs, a)
	}
	finalAttrs = append(finalAttrs, discovered...)

	itemKeys := make(map[string][]any, len(finalAttrs))
	for _, attr := range finalAttrs {
		v, ok := t.acc.get(item, attr)
		if !ok {
			// Object mode never falls back to a table-wide default here: a
			// record lacking an already-known attribute fails unconditionally
			// (§6). Mapping mode uses the configured default, if any.
			if t.objectMode {
				return 0, fmt.Errorf("ldtable: attribute %q missing on new record: %w", attr, ErrMissingAttribute)
			}
			dv, has := t.defaultAttr.value()
			if !has {
				return 0, fmt.Errorf("ldtable: attribute %q missing on new record: %w", attr, ErrMissingAttribute)
			}
			v = dv
		}
		keys, err := normalize(v)
		if err != nil {
			return 0, err
		}
		itemKeys[attr] = keys
	}

	for attr, values := range backfills {
		if err := t.installAttribute(attr, values); err != nil {
			return 0, err
		}
	}

	id := t.store.append(item)
	for attr, keys := range itemKeys {
		t.idx.post(attr, id, keys)
	}
	if len(discovered) > 0 {
		t.bumpEpoch()
	}
	return id, nil
}

// Add appends each item to the table, auto-discovering newly seen
// attributes per the table's mode and options. Items are processed in
// order; a failure on one leaves prior items in this call already added.
func (t *Table) Add(items ...any) ([]SlotID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]SlotID, 0, len(items))
	for _, item := range items {
		id, err := t.addOneLocked(item)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// toNode converts one accepted query input form into a Node: an already
// built Node (including an *AttrProxy), a string-keyed map (implicit And of
// Eq nodes), or, in object mode with indexed objects, a record whose every
// attribute becomes an Eq node.
func (t *Table) toNode(q any) (Node, error) {
	switch v := q.(type) {
	case Node:
		return v, nil
	case map[string]any:
		return t.mapToNode(v)
	}

	rv := reflect.ValueOf(q)
	if q != nil && rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		m := make(map[string]any, rv.Len())
		for _, k := range rv.MapKeys() {
			m[k.String()] = rv.MapIndex(k).Interface()
		}
		return t.mapToNode(m)
	}

	if t.objectMode && t.indexObjects && q != nil {
		if attrs, err := t.acc.attrs(q); err == nil {
			nodes := make([]Node, 0, len(attrs))
			for _, a := range attrs {
				val, _ := t.acc.get(q, a)
				nodes = append(nodes, eqNode{attr: a, value: val})
			}
			return andNode{nodes: nodes}, nil
		}
	}

	return nil, fmt.Errorf("ldtable: %T: %w", q, ErrBadQuery)
}

func (t *Table) mapToNode(m map[string]any) (Node, error) {
	nodes := make([]Node, 0, len(m))
	for k, v := range m {
		nodes = append(nodes, eqNode{attr: k, value: v})
	}
	return andNode{nodes: nodes}, nil
}

func (t *Table) resolveQuery(queries []any) (Node, error) {
	if len(queries) == 0 {
		return andNode{}, nil
	}
	nodes := make([]Node, 0, len(queries))
	for _, q := range queries {
		n, err := t.toNode(q)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return andNode{nodes: nodes}, nil
}

func sortedIDs(s slotSet) []SlotID {
	out := make([]SlotID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// QueryResult is the resolved, ascending-slot-order result of a query. It
// behaves identically whether the table's alwaysReturnList option is set;
// that option only controls when records are fetched from the store.
type QueryResult struct {
	t       *Table
	ids     []SlotID
	records []any
	eager   bool
}

func (r *QueryResult) materialize() {
	r.records = make([]any, len(r.ids))
	for i, id := range r.ids {
		rec, _ := r.t.store.get(id)
		r.records[i] = rec
	}
	r.eager = true
}

// Len reports the number of matched slots.
func (r *QueryResult) Len() int { return len(r.ids) }

// IDs returns the matched slot ids in ascending order.
func (r *QueryResult) IDs() []SlotID { return r.ids }

// Records materializes every matched record, in ascending slot order.
func (r *QueryResult) Records() ([]any, error) {
	if r.eager {
		return r.records, nil
	}
	out := make([]any, len(r.ids))
	for i, id := range r.ids {
		rec, err := r.t.Get(id)
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}
	return out, nil
}

// Items lazily yields (slot id, record) pairs in ascending slot order.
func (r *QueryResult) Items() iter.Seq2[SlotID, any] {
	return func(yield func(SlotID, any) bool) {
		for i, id := range r.ids {
			var rec any
			if r.eager {
				rec = r.records[i]
			} else {
				v, err := r.t.Get(id)
				if err != nil {
					continue
				}
				rec = v
			}
			if !yield(id, rec) {
				return
			}
		}
	}
}

// Query resolves queries (combined by implicit And) to a QueryResult.
func (t *Table) Query(queries ...any) (*QueryResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, err := t.resolveQuery(queries)
	if err != nil {
		return nil, err
	}
	set, err := node.eval(t)
	if err != nil {
		return nil, err
	}
	qr := &QueryResult{t: t, ids: sortedIDs(set)}
	if t.alwaysReturnList {
		qr.materialize()
	}
	return qr, nil
}

// QueryOne resolves queries and returns the first matching record in slot
// order, or ok=false if none matched.
func (t *Table) QueryOne(queries ...any) (record any, ok bool, err error) {
	qr, err := t.Query(queries...)
	if err != nil {
		return nil, false, err
	}
	if qr.Len() == 0 {
		return nil, false, nil
	}
	rec, err := t.Get(qr.ids[0])
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Count resolves queries and reports the number of matching slots.
func (t *Table) Count(queries ...any) (int, error) {
	qr, err := t.Query(queries...)
	if err != nil {
		return 0, err
	}
	return qr.Len(), nil
}

// Contains reports whether q matches at least one live slot. A bare scalar
// that is neither a mapping, Node, nor (in applicable object mode) a record
// fails with ErrBadQuery.
func (t *Table) Contains(q any) (bool, error) {
	n, err := t.Count(q)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get returns the live record at slot i, or ErrDeleted/ErrOutOfRange.
func (t *Table) Get(i SlotID) (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.store.get(i)
}

// Len reports the number of live slots.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.store.len()
}

// Items lazily yields every live (slot id, record) pair in ascending order.
func (t *Table) Items() iter.Seq2[SlotID, any] {
	return func(yield func(SlotID, any) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		t.store.iterLive(yield)
	}
}

// Handle returns a fresh query-handle factory snapshotting the table's
// current schema epoch.
func (t *Table) Handle() *Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &Handle{table: t, epoch: t.epoch}
}

// Attributes returns the currently indexed attribute names.
func (t *Table) Attributes() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.idx.knownAttributes()
}

func changesToMap(t *Table, changes any) (map[string]any, error) {
	if m, ok := changes.(map[string]any); ok {
		return m, nil
	}
	rv := reflect.ValueOf(changes)
	if changes != nil && rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		m := make(map[string]any, rv.Len())
		for _, k := range rv.MapKeys() {
			m[k.String()] = rv.MapIndex(k).Interface()
		}
		return m, nil
	}
	if t.objectMode {
		attrs, err := t.acc.attrs(changes)
		if err != nil {
			return nil, fmt.Errorf("ldtable: %T: %w", changes, ErrBadQuery)
		}
		m := make(map[string]any, len(attrs))
		for _, a := range attrs {
			if v, ok := t.acc.get(changes, a); ok {
				m[a] = v
			}
		}
		return m, nil
	}
	return nil, fmt.Errorf("ldtable: %T: %w", changes, ErrBadQuery)
}

// Update resolves queries (≥1 match required, else ErrNoMatch) and applies
// changes to every matched record: a map (mapping mode) or an object whose
// matching attributes are copied (object mode). Validation happens before
// any mutation, so a failure leaves the table exactly as it was.
func (t *Table) Update(changes any, queries ...any) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, err := t.resolveQuery(queries)
	if err != nil {
		return 0, err
	}
	set, err := node.eval(t)
	if err != nil {
		return 0, err
	}
	if len(set) == 0 {
		return 0, ErrNoMatch
	}

	changesMap, err := changesToMap(t, changes)
	if err != nil {
		return 0, err
	}

	newKeys := make(map[string][]any, len(changesMap))
	for attr, v := range changesMap {
		if t.isExcluded(attr) {
			t.log.Debug("update rejected: excluded attribute", zap.String("attr", attr))
			return 0, fmt.Errorf("ldtable: attribute %q: %w", attr, ErrExcludedAttribute)
		}
		if !t.idx.hasAttribute(attr) {
			return 0, fmt.Errorf("ldtable: attribute %q: %w", attr, ErrUnknownAttribute)
		}
		keys, err := normalize(v)
		if err != nil {
			return 0, err
		}
		newKeys[attr] = keys
	}

	ids := sortedIDs(set)
	for _, id := range ids {
		record, err := t.store.get(id)
		if err != nil {
			return 0, err
		}
		for attr, v := range changesMap {
			oldVal, hadOld := t.acc.get(record, attr)
			if err := t.acc.set(record, attr, v); err != nil {
				return 0, err
			}
			if hadOld {
				if oldKeys, err := normalize(oldVal); err == nil {
					t.idx.unpost(attr, id, oldKeys)
				}
			} else {
				// The record didn't carry attr, so its posting came from a
				// back-fill (a default or nil): drop id wherever it is posted.
				for k, set := range t.idx.posting[attr] {
					if set.has(id) {
						t.idx.unpost(attr, id, []any{k})
					}
				}
			}
			t.idx.post(attr, id, newKeys[attr])
		}
	}
	return len(ids), nil
}

// Remove resolves queries (≥1 match required, else ErrNoMatch), unposts and
// tombstones every matched slot.
func (t *Table) Remove(queries ...any) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, err := t.resolveQuery(queries)
	if err != nil {
		return 0, err
	}
	set, err := node.eval(t)
	if err != nil {
		return 0, err
	}
	if len(set) == 0 {
		return 0, ErrNoMatch
	}

	ids := sortedIDs(set)
	for _, id := range ids {
		record, err := t.store.get(id)
		if err != nil {
			return 0, err
		}
		for _, attr := range t.idx.knownAttributes() {
			if v, ok := t.acc.get(record, attr); ok {
				if keys, err := normalize(v); err == nil {
					t.idx.unpost(attr, id, keys)
				}
				continue
			}
			// Back-filled attribute (a default or nil, not on the record):
			// drop id wherever it is posted.
			for k, set := range t.idx.posting[attr] {
				if set.has(id) {
					t.idx.unpost(attr, id, []any{k})
				}
			}
		}
		if err := t.store.tombstone(id); err != nil {
			return 0, err
		}
	}
	t.log.Debug("removed", zap.Int("count", len(ids)))
	return len(ids), nil
}
