package schema

import (
	"fmt"
	"io"
	"os"

	yaml "gopkg.in/yaml.v2"
)

type propertyDecl struct {
	Name       string `yaml:"name"`
	ID         uint32 `yaml:"id"`
	Type       string `yaml:"type"`
	Identifier bool   `yaml:"identifier"`
	Unique     bool   `yaml:"unique"`
	Indexed    bool   `yaml:"indexed"`
}

type entityDecl struct {
	Name       string         `yaml:"name"`
	ID         uint32         `yaml:"id"`
	Properties []propertyDecl `yaml:"properties"`
}

type declaration struct {
	Entities []entityDecl `yaml:"entities"`
}

// LoadYAML reads entity declarations of the form
//
//	entities:
//	  - name: User
//	    id: 1
//	    properties:
//	      - {name: id, id: 1, type: int64, identifier: true}
//	      - {name: name, id: 2, type: string, unique: true}
func LoadYAML(r io.Reader) ([]*Entity, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	decl := declaration{}
	if err := yaml.UnmarshalStrict(buf, &decl); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if len(decl.Entities) == 0 {
		return nil, fmt.Errorf("%w: no entities declared", ErrInvalidSchema)
	}

	entities := make([]*Entity, 0, len(decl.Entities))
	names := make(map[string]struct{}, len(decl.Entities))
	ids := make(map[uint32]struct{}, len(decl.Entities))

	for _, ed := range decl.Entities {
		props := make([]Property, 0, len(ed.Properties))
		for _, pd := range ed.Properties {
			typ, err := ParseType(pd.Type)
			if err != nil {
				return nil, fmt.Errorf("entity %q property %q: %w", ed.Name, pd.Name, err)
			}
			var flags Flags
			if pd.Identifier {
				flags |= ID
			}
			if pd.Unique {
				flags |= Unique
			}
			if pd.Indexed {
				flags |= Indexed
			}
			props = append(props, NewProperty(pd.Name, pd.ID, typ, flags))
		}

		e, err := NewEntity(ed.Name, ed.ID, props...)
		if err != nil {
			return nil, err
		}
		if _, dup := names[e.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate entity name %q", ErrInvalidSchema, e.Name())
		}
		if _, dup := ids[e.ID()]; dup {
			return nil, fmt.Errorf("%w: duplicate entity id %d", ErrInvalidSchema, e.ID())
		}
		names[e.Name()] = struct{}{}
		ids[e.ID()] = struct{}{}
		entities = append(entities, e)
	}

	return entities, nil
}

// LoadYAMLFile reads entity declarations from a file.
func LoadYAMLFile(path string) ([]*Entity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadYAML(f)
}
