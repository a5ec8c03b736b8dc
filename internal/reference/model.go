package reference

// OptionCatalog: справочник вариантов для select-полей
type OptionCatalog struct {
	Name  string       `yaml:"name" json:"name"`
	Items []OptionItem `yaml:"items" json:"items"`
}

type OptionItem struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name,omitempty"`
	// порядок отображения; 0: как в файле
	Order int `yaml:"order,omitempty" json:"order,omitempty"`
}

// Values: коды вариантов в порядке Order (стабильно для равных)
func (c OptionCatalog) Values() []string {
	items := append([]OptionItem(nil), c.Items...)
	sortItems(items)
	out := make([]string, 0, len(items))
	for _, it := range items {
		v := it.Code
		if v == "" {
			v = it.Name
		}
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
