package consensus

// CoinOut is one output of a coin entry. Spent outputs stay in place so
// indices remain stable.
type CoinOut struct {
	Value  Amount
	Script []byte
	Spent  bool
}

// Coins is the ledger entry created for a record, keyed by its identity hash.
type Coins struct {
	Version              int32
	Height               uint64
	CreatedByCertificate bool
	Outputs              []CoinOut
}

// FromCertificate populates the entry from the certificate's ordinary
// outputs, stamped with the inclusion height.
func (c *Coins) FromCertificate(cert *Certificate, height uint64) {
	c.Version = cert.version
	c.Height = height
	c.CreatedByCertificate = true
	c.Outputs = make([]CoinOut, len(cert.vout))
	for i, o := range cert.vout {
		c.Outputs[i] = CoinOut{Value: o.Value, Script: append([]byte(nil), o.Script...)}
	}
}

func (c *Coins) IsAvailable(i int) bool {
	return i >= 0 && i < len(c.Outputs) && !c.Outputs[i].Spent
}

// Spend marks output i spent and reports whether it was available.
func (c *Coins) Spend(i int) bool {
	if !c.IsAvailable(i) {
		return false
	}
	c.Outputs[i].Spent = true
	return true
}

// IsPruned reports whether no output is left unspent.
func (c *Coins) IsPruned() bool {
	for _, o := range c.Outputs {
		if !o.Spent {
			return false
		}
	}
	return true
}

func (c Coins) Clone() Coins {
	out := c
	if c.Outputs != nil {
		out.Outputs = make([]CoinOut, len(c.Outputs))
		for i, o := range c.Outputs {
			out.Outputs[i] = CoinOut{Value: o.Value, Script: append([]byte(nil), o.Script...), Spent: o.Spent}
		}
	}
	return out
}

func (c Coins) Equal(o Coins) bool {
	if c.Version != o.Version || c.Height != o.Height || c.CreatedByCertificate != o.CreatedByCertificate ||
		len(c.Outputs) != len(o.Outputs) {
		return false
	}
	for i := range c.Outputs {
		a, b := c.Outputs[i], o.Outputs[i]
		if a.Value != b.Value || a.Spent != b.Spent || string(a.Script) != string(b.Script) {
			return false
		}
	}
	return true
}

// CoinsView is a read-only source of coin entries.
type CoinsView interface {
	GetCoins(id [32]byte) (Coins, bool, error)
}

// CoinsBatchWriter persists a set of changes at once. A nil value deletes
// the key. Implementations must apply the whole batch or none of it.
type CoinsBatchWriter interface {
	BatchWrite(changes map[[32]byte]*Coins) error
}

type emptyCoinsView struct{}

func (emptyCoinsView) GetCoins([32]byte) (Coins, bool, error) { return Coins{}, false, nil }

// CoinsViewCache stages modifications on top of a base view. Nothing reaches
// the base until Flush. It is not safe for concurrent use; callers serialize
// writers (see node.Processor).
type CoinsViewCache struct {
	base    CoinsView
	entries map[[32]byte]*cacheEntry
}

type cacheEntry struct {
	coins *Coins // nil: known absent
	dirty bool
}

func NewCoinsViewCache(base CoinsView) *CoinsViewCache {
	if base == nil {
		base = emptyCoinsView{}
	}
	return &CoinsViewCache{base: base, entries: make(map[[32]byte]*cacheEntry)}
}

func (v *CoinsViewCache) fetch(id [32]byte) (*cacheEntry, error) {
	if e, ok := v.entries[id]; ok {
		return e, nil
	}
	c, ok, err := v.base.GetCoins(id)
	if err != nil {
		return nil, err
	}
	e := &cacheEntry{}
	if ok {
		cc := c.Clone()
		e.coins = &cc
	}
	v.entries[id] = e
	return e, nil
}

// GetCoins returns a copy of the entry; the cache itself is a CoinsView so
// caches can be stacked.
func (v *CoinsViewCache) GetCoins(id [32]byte) (Coins, bool, error) {
	e, err := v.fetch(id)
	if err != nil || e.coins == nil {
		return Coins{}, false, err
	}
	return e.coins.Clone(), true, nil
}

// AccessCoins is GetCoins without the copy. The returned entry must not be
// modified; use ModifyCoins for that.
func (v *CoinsViewCache) AccessCoins(id [32]byte) (*Coins, bool, error) {
	e, err := v.fetch(id)
	if err != nil || e.coins == nil {
		return nil, false, err
	}
	return e.coins, true, nil
}

// HaveCoins reports whether an entry exists with at least one unspent output.
func (v *CoinsViewCache) HaveCoins(id [32]byte) (bool, error) {
	e, err := v.fetch(id)
	if err != nil {
		return false, err
	}
	return e.coins != nil && !e.coins.IsPruned(), nil
}

// ModifyCoins returns a mutable handle to the entry at id, creating an empty
// one if absent. The entry is marked dirty.
func (v *CoinsViewCache) ModifyCoins(id [32]byte) (*Coins, error) {
	e, err := v.fetch(id)
	if err != nil {
		return nil, err
	}
	if e.coins == nil {
		e.coins = &Coins{}
	}
	e.dirty = true
	return e.coins, nil
}

// SpendCoins marks output index of id spent. It reports false when the
// output is missing or already spent; nothing is modified in that case.
func (v *CoinsViewCache) SpendCoins(id [32]byte, index int) (bool, error) {
	e, err := v.fetch(id)
	if err != nil {
		return false, err
	}
	if e.coins == nil || !e.coins.IsAvailable(index) {
		return false, nil
	}
	e.coins.Spend(index)
	e.dirty = true
	return true, nil
}

// SetCoins replaces the entry at id.
func (v *CoinsViewCache) SetCoins(id [32]byte, c Coins) {
	cc := c.Clone()
	v.entries[id] = &cacheEntry{coins: &cc, dirty: true}
}

// RemoveCoins marks id absent.
func (v *CoinsViewCache) RemoveCoins(id [32]byte) {
	v.entries[id] = &cacheEntry{dirty: true}
}

func (v *CoinsViewCache) DirtyCount() int {
	n := 0
	for _, e := range v.entries {
		if e.dirty {
			n++
		}
	}
	return n
}

// Changes returns copies of the dirty entries, nil meaning deletion.
func (v *CoinsViewCache) Changes() map[[32]byte]*Coins {
	out := make(map[[32]byte]*Coins)
	for id, e := range v.entries {
		if !e.dirty {
			continue
		}
		if e.coins == nil {
			out[id] = nil
			continue
		}
		cc := e.coins.Clone()
		out[id] = &cc
	}
	return out
}

// Flush hands every dirty entry to w in one batch and clears the cache on
// success. On failure the cache is left untouched.
func (v *CoinsViewCache) Flush(w CoinsBatchWriter) error {
	if err := w.BatchWrite(v.Changes()); err != nil {
		return err
	}
	v.entries = make(map[[32]byte]*cacheEntry)
	return nil
}

// BatchWrite lets a cache act as the parent of a nested cache.
func (v *CoinsViewCache) BatchWrite(changes map[[32]byte]*Coins) error {
	for id, c := range changes {
		if c == nil {
			v.RemoveCoins(id)
			continue
		}
		v.SetCoins(id, *c)
	}
	return nil
}
