package materialize

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/conflux/internal/service"
)

const tagName = "cfg"

type fieldMode int

const (
	modeAttr fieldMode = iota
	modeElem
	modeRef
)

// fieldSpec is one `cfg`-tagged struct field.
type fieldSpec struct {
	name     string
	goName   string
	index    []int
	mode     fieldMode
	required bool
	warn     bool
	def      string
	// many is set for slice-typed elem fields.
	many bool
	// target is the element type for elem and ref fields.
	target reflect.Type
}

var (
	serviceType  = reflect.TypeOf((*service.Service)(nil)).Elem()
	durationType = reflect.TypeOf(time.Duration(0))
)

func parseFields(t reflect.Type) ([]fieldSpec, error) {
	var (
		specs []fieldSpec
		seen  = make(map[string]string)
	)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, ok := f.Tag.Lookup(tagName)
		if !ok || tag == "-" {
			continue
		}
		if !f.IsExported() {
			return nil, fmt.Errorf("field '%s' is tagged but not exported", f.Name)
		}

		parts := strings.Split(tag, ",")
		spec := fieldSpec{name: parts[0], goName: f.Name, index: f.Index, def: f.Tag.Get("default")}
		if spec.name == "" {
			spec.name = strings.ToLower(f.Name)
		}
		for _, opt := range parts[1:] {
			switch opt {
			case "required":
				spec.required = true
			case "elem":
				spec.mode = modeElem
			case "ref":
				spec.mode = modeRef
			case "warn":
				spec.warn = true
			default:
				return nil, fmt.Errorf("field '%s': unknown tag option %q", f.Name, opt)
			}
		}
		if prev, dup := seen[spec.name]; dup {
			return nil, fmt.Errorf("fields '%s' and '%s' both map to '%s'", prev, f.Name, spec.name)
		}
		seen[spec.name] = f.Name

		if err := checkFieldType(&spec, f.Type); err != nil {
			return nil, fmt.Errorf("field '%s': %w", f.Name, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func checkFieldType(spec *fieldSpec, t reflect.Type) error {
	switch spec.mode {
	case modeElem:
		if spec.def != "" {
			return fmt.Errorf("elem fields cannot have a default")
		}
		if t.Kind() == reflect.Slice {
			spec.many = true
			t = t.Elem()
		}
		if !t.Implements(serviceType) {
			return fmt.Errorf("elem field type %s does not implement service.Service", t)
		}
		spec.target = t
	case modeRef:
		if spec.def != "" {
			return fmt.Errorf("ref fields cannot have a default")
		}
		if t.Kind() != reflect.Interface && t.Kind() != reflect.Pointer {
			return fmt.Errorf("ref field type %s must be an interface or a pointer", t)
		}
		spec.target = t
	default:
		if spec.warn {
			return fmt.Errorf("option 'warn' only applies to ref fields")
		}
		if t == durationType {
			return nil
		}
		probe := t
		if t.Kind() == reflect.Slice {
			probe = t.Elem()
		}
		if _, err := gocty.ImpliedType(reflect.Zero(probe).Interface()); err != nil {
			return fmt.Errorf("could not imply cty type from Go field type %s: %w", t, err)
		}
	}
	return nil
}

func fieldOf(s service.Service, f fieldSpec) reflect.Value {
	return reflect.ValueOf(s).Elem().FieldByIndex(f.index)
}

// assign converts the attribute string raw into dst. Slices take a comma
// separated list. time.Duration uses Go duration syntax.
func assign(dst reflect.Value, raw string) error {
	if dst.Kind() == reflect.Slice && dst.Type().Elem() != reflect.TypeOf(byte(0)) {
		var items []string
		if strings.TrimSpace(raw) != "" {
			items = strings.Split(raw, ",")
		}
		out := reflect.MakeSlice(dst.Type(), len(items), len(items))
		for i, item := range items {
			if err := assign(out.Index(i), strings.TrimSpace(item)); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
		dst.Set(out)
		return nil
	}

	if dst.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		dst.SetInt(int64(d))
		return nil
	}

	ty, err := gocty.ImpliedType(dst.Interface())
	if err != nil {
		return err
	}
	val, err := convert.Convert(cty.StringVal(raw), ty)
	if err != nil {
		return err
	}
	return gocty.FromCtyValue(val, dst.Addr().Interface())
}
