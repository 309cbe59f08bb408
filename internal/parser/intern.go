package parser

// maxPoolSize bounds the number of distinct strings a pool keeps. Past it,
// strings are returned as is.
const maxPoolSize = 100000

// stringPool interns text cells while one file is decoded. Sheets repeat
// category-like values (status, region, unit) across thousands of rows;
// interning lets those rows share one backing string. A pool belongs to a
// single Decode call and is not safe for concurrent use.
type stringPool struct {
	pool map[string]string
	max  int
}

func newStringPool() *stringPool {
	return &stringPool{pool: make(map[string]string, 256), max: maxPoolSize}
}

// intern returns the pooled copy of s.
func (p *stringPool) intern(s string) string {
	if pooled, ok := p.pool[s]; ok {
		return pooled
	}
	if len(p.pool) >= p.max {
		return s
	}
	p.pool[s] = s
	return s
}

// value infers the JSON value of raw and interns it when it stays text.
func (p *stringPool) value(raw string) any {
	v := InferValue(raw)
	if s, ok := v.(string); ok {
		return p.intern(s)
	}
	return v
}

func (p *stringPool) len() int {
	return len(p.pool)
}
