package engine

// Broker holds the credit that buy orders are reserved and settled against.
type Broker struct {
	ID     int64
	Credit int64
}

func NewBroker(id, credit int64) *Broker {
	return &Broker{ID: id, Credit: credit}
}

func (b *Broker) HasEnoughCredit(amount int64) bool {
	return b.Credit >= amount
}

func (b *Broker) IncreaseCreditBy(amount int64) {
	b.Credit += amount
}

func (b *Broker) DecreaseCreditBy(amount int64) {
	b.Credit -= amount
}

// Shareholder holds positions per instrument.
type Shareholder struct {
	ID        int64
	positions map[string]int64
}

func NewShareholder(id int64) *Shareholder {
	return &Shareholder{ID: id, positions: make(map[string]int64)}
}

func (s *Shareholder) Position(isin string) int64 {
	return s.positions[isin]
}

// Positions returns a copy of every position ever touched, zeros included.
func (s *Shareholder) Positions() map[string]int64 {
	out := make(map[string]int64, len(s.positions))
	for isin, qty := range s.positions {
		out[isin] = qty
	}
	return out
}

func (s *Shareholder) IncPosition(isin string, amount int64) {
	s.positions[isin] += amount
}

func (s *Shareholder) DecPosition(isin string, amount int64) {
	s.positions[isin] -= amount
}

func (s *Shareholder) HasEnoughPositionsOn(isin string, amount int64) bool {
	return s.positions[isin] >= amount
}
