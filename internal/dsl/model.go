package dsl

// Schema: содержимое seed-файлов: конфиг, поля и сущности
type Schema struct {
	Config   map[string]string
	Fields   []FieldSpec
	Entities []EntitySpec
}

// FieldSpec описывает поле из строки `field Name: type flags...`
type FieldSpec struct {
	Name       string
	Type       string            // text, number, select
	Options    []string          // варианты select[...]
	OptionsRef string            // options=@catalog
	Flags      map[string]string // required, table, report и прочие
	File       string
	Line       int
}

// EntitySpec: `entity Name: FieldA, FieldB` (+ поля на следующих строках с отступом)
type EntitySpec struct {
	Name   string
	Fields []string
	File   string
	Line   int
}

func (f FieldSpec) Flag(name string) bool {
	v, ok := f.Flags[name]
	return ok && v != "false" && v != "0" && v != "no"
}
