package layout

// Static per-type configuration: which binding keys a freshly added item
// starts with and which child types a container accepts. This mirrors the
// component schema shipped with the designer; it is config, not per-instance
// state.
type typeConfig struct {
	bindingKeys     []string
	validChildTypes []ComponentType // nil means any type is accepted
}

var typeConfigs = map[ComponentType]typeConfig{
	TypeInput:             {bindingKeys: []string{BindingKeySimple}},
	TypeTextArea:          {bindingKeys: []string{BindingKeySimple}},
	TypeCheckboxes:        {bindingKeys: []string{BindingKeySimple}},
	TypeRadioButtons:      {bindingKeys: []string{BindingKeySimple}},
	TypeDropdown:          {bindingKeys: []string{BindingKeySimple}},
	TypeDatepicker:        {bindingKeys: []string{BindingKeySimple}},
	TypeFileUpload:        {bindingKeys: []string{BindingKeyList}},
	TypeFileUploadWithTag: {bindingKeys: []string{BindingKeyList}},
	TypeAddress:           {bindingKeys: []string{BindingKeyAddress}},
	TypeGroup:             {bindingKeys: []string{BindingKeyGroup}},
	TypeButtonGroup: {
		validChildTypes: []ComponentType{TypeButton, TypeNavigationButtons},
	},
}

// ValidChildTypes returns the static allow-list for a container type, or nil
// when any child type is accepted.
func ValidChildTypes(t ComponentType) []ComponentType {
	return typeConfigs[t].validChildTypes
}

// DefaultComponent builds the default-valued component for a type, with empty
// bindings for each of the type's binding keys.
func DefaultComponent(t ComponentType, id string) Component {
	c := Component{
		ID:                   id,
		Type:                 t,
		TextResourceBindings: map[string]string{},
	}
	keys := typeConfigs[t].bindingKeys
	if len(keys) > 0 {
		c.Bindings = make(map[string]Binding, len(keys))
		for _, k := range keys {
			c.Bindings[k] = Binding{}
		}
	}
	return c
}

// DefaultContainer builds the default-valued container for a type. The id is
// assigned by AddContainer.
func DefaultContainer(t ComponentType) Container {
	c := Container{
		Type:                 t,
		TextResourceBindings: map[string]string{},
	}
	if keys := typeConfigs[t].bindingKeys; len(keys) > 0 {
		c.Bindings = make(map[string]Binding, len(keys))
		for _, k := range keys {
			c.Bindings[k] = Binding{}
		}
	}
	return c
}
