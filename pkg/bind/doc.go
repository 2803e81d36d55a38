// Package bind turns untrusted input maps into typed, authorized entities.
//
// A Schema is declared once at process start with Define and is immutable
// afterwards. Each field has a semantic type, an optional default, and an
// optional permission policy evaluated against the scope the entity was
// built with. Schema.New coerces every present key, applies defaults for
// absent ones, and rejects denied writes with a NotPermittedError.
//
// Entities run through a small pipeline (Call, CallOrRaise): validate,
// authorize, then perform the action registered on the schema.
//
// Example:
//
//	var UserForm = bind.MustDefine("UserForm", func(b *bind.Builder) {
//	    b.Field("name", bind.TypeString)
//	    b.Nested("comments", func(c *bind.Builder) {
//	        c.Field("id", bind.TypeInteger)
//	        c.Field("text", bind.TypeString)
//	        c.Field("_destroy", bind.TypeBoolean)
//	    })
//	    b.Validate(bind.Presence("name"))
//	})
//
//	form, err := UserForm.New(params, bind.WithScope(currentUser))
package bind
