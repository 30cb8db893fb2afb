package opmeta

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conduit-lang/opmeta/pkg/expr"
)

var opPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*(\.[A-Za-z0-9_-]+)*$`)

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

func getValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// Validate checks field presence, enum membership and nested shapes, then the
// rules that span fields: auth flag contradictions, positional density,
// constant and fallback shapes, invalidation shapes, raw factories and audit
// expression syntax. It returns nil when meta is valid.
func Validate(meta *OpMeta) *ValidationErrors {
	if meta == nil {
		verrs := NewValidationErrors("")
		verrs.Add(DecodePath, "metadata is missing")
		return verrs
	}

	verrs := NewValidationErrors(meta.Op)
	validateStruct(meta, verrs)

	if meta.Op != "" && !opPattern.MatchString(meta.Op) {
		verrs.Add("op", "must be a dotted identifier such as billing.subscribe")
	}

	validateAuth(meta, verrs)
	validateCache(meta.Cache, verrs)
	if meta.Cache != nil && meta.CallerScoped() {
		verrs.Add("cache", "not allowed when call arguments read ctx or the binding is raw")
	}

	for i, d := range meta.Invalidate {
		validateInvalidation(fmt.Sprintf("invalidate[%d]", i), d, verrs)
	}

	if meta.Service != nil {
		validateService(meta.Service, verrs)
	}

	if verrs.HasErrors() {
		return verrs
	}
	return nil
}

func validateStruct(meta *OpMeta, verrs *ValidationErrors) {
	err := getValidator().Struct(meta)
	if err == nil {
		return
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verrs.Add(DecodePath, err.Error())
		return
	}

	for _, fe := range fieldErrs {
		verrs.Add(fieldPath(fe.Namespace()), fieldMessage(fe))
	}
}

// fieldPath strips the root struct name from a validator namespace
func fieldPath(ns string) string {
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func validateAuth(meta *OpMeta, verrs *ValidationErrors) {
	if !meta.AllowUnauthed {
		return
	}
	switch {
	case meta.RequireUser:
		verrs.Add("allowUnauthed", "cannot be combined with requireUser")
	case meta.NeedsSuperAdmin():
		verrs.Add("allowUnauthed", "cannot be combined with requireSuperAdmin")
	case meta.Perm != "":
		verrs.Add("allowUnauthed", "cannot be combined with perm")
	case meta.NeedsTenantMatch():
		verrs.Add("allowUnauthed", "cannot be combined with requireTenantMatch")
	}
}

func validateCache(rule *CacheRule, verrs *ValidationErrors) {
	if rule == nil {
		return
	}
	for i, seg := range rule.Key {
		if seg == "" {
			verrs.Add(fmt.Sprintf("cache.key[%d]", i), "must not be empty")
		}
	}
	for i, field := range rule.Vary {
		if field == "" {
			verrs.Add(fmt.Sprintf("cache.vary[%d]", i), "must not be empty")
		}
	}
	if rule.TTL != "" {
		if d, err := time.ParseDuration(rule.TTL); err != nil || d <= 0 {
			verrs.Add("cache.ttl", "must be a positive duration such as 30s")
		}
	}
}

func validateInvalidation(path string, d InvalidationDirective, verrs *ValidationErrors) {
	switch d.Kind {
	case InvalidatePrefix, InvalidateKey:
		if len(d.Key) == 0 {
			verrs.Add(path+".key", fmt.Sprintf("is required for kind %s", d.Kind))
		}
		for i, seg := range d.Key {
			if seg == "" {
				verrs.Add(fmt.Sprintf("%s.key[%d]", path, i), "must not be empty")
			}
		}
		if d.Target != "" {
			verrs.Add(path+".target", fmt.Sprintf("is not allowed for kind %s", d.Kind))
		}
		if d.From != "" {
			verrs.Add(path+".from", fmt.Sprintf("is not allowed for kind %s", d.Kind))
		}
		if len(d.Pick) > 0 {
			verrs.Add(path+".pick", fmt.Sprintf("is not allowed for kind %s", d.Kind))
		}
	case InvalidateOp:
		if d.Target == "" {
			verrs.Add(path+".target", "is required for kind op")
		} else if !opPattern.MatchString(d.Target) {
			verrs.Add(path+".target", "must be an operation name")
		}
		if len(d.Key) > 0 {
			verrs.Add(path+".key", "is not allowed for kind op")
		}
		for i, field := range d.Pick {
			if field == "" {
				verrs.Add(fmt.Sprintf("%s.pick[%d]", path, i), "must not be empty")
			}
		}
	}
}

func validateService(s *ServiceBinding, verrs *ValidationErrors) {
	if s.Raw {
		if s.Factory == "" {
			verrs.Add("service.factory", "is required when raw is set")
		}
		if len(s.CallArgs) > 0 {
			verrs.Add("service.callArgs", "must be empty when raw is set")
		}
	} else {
		if s.Factory != "" {
			verrs.Add("service.factory", "requires raw")
		}
		if s.ImportPath == "" {
			verrs.Add("service.importPath", "is required")
		}
		if s.Fn == "" {
			verrs.Add("service.fn", "is required")
		}
	}

	for i, arg := range s.CallArgs {
		validateCallArg(fmt.Sprintf("service.callArgs[%d]", i), arg, verrs)
	}

	if s.InvokeMode() == InvokePositional {
		validatePositional(s.CallArgs, verrs)
	} else {
		seen := make(map[string]int, len(s.CallArgs))
		for i, arg := range s.CallArgs {
			if prev, ok := seen[arg.Name]; ok && arg.Name != "" {
				verrs.Add(fmt.Sprintf("service.callArgs[%d].name", i),
					fmt.Sprintf("duplicates service.callArgs[%d].name", prev))
				continue
			}
			seen[arg.Name] = i
		}
	}

	if s.Audit != nil {
		validateAudit(s.Audit, verrs)
	}
}

func validateCallArg(path string, arg CallArg, verrs *ValidationErrors) {
	if arg.From == SourceConst {
		if arg.Value == nil {
			verrs.Add(path+".value", "is required when from is const")
		}
		if arg.Key != "" {
			verrs.Add(path+".key", "is not allowed when from is const")
		}
		if arg.Optional {
			verrs.Add(path+".optional", "is not allowed when from is const")
		}
		if arg.Fallback != nil {
			verrs.Add(path+".fallback", "is not allowed when from is const")
		}
		return
	}

	if arg.Value != nil {
		verrs.Add(path+".value", "is only allowed when from is const")
	}

	if fb := arg.Fallback; fb != nil {
		switch fb.Kind {
		case FallbackEnv:
			if fb.Key == "" {
				verrs.Add(path+".fallback.key", "is required for kind env")
			}
			if fb.Value != nil {
				verrs.Add(path+".fallback.value", "is not allowed for kind env")
			}
		case FallbackValue:
			if fb.Value == nil {
				verrs.Add(path+".fallback.value", "is required for kind value")
			}
			if fb.Key != "" {
				verrs.Add(path+".fallback.key", "is not allowed for kind value")
			}
		}
	}
}

// validatePositional enforces names "0".."n-1" in declared order, with
// omittable arguments only at the end.
func validatePositional(args []CallArg, verrs *ValidationErrors) {
	firstOmittable := -1
	reported := false
	for i, arg := range args {
		path := fmt.Sprintf("service.callArgs[%d]", i)
		idx, err := strconv.Atoi(arg.Name)
		switch {
		case err != nil || idx < 0:
			verrs.Add(path+".name", "must be a slot index when invoke is positional")
		case idx != i:
			verrs.Add(path+".name", fmt.Sprintf("positional slots must be dense: expected %q, got %q", strconv.Itoa(i), arg.Name))
		}

		if Omittable(arg) {
			if firstOmittable < 0 {
				firstOmittable = i
			}
		} else if firstOmittable >= 0 && !reported {
			verrs.Add(fmt.Sprintf("service.callArgs[%d].optional", firstOmittable),
				"optional positional arguments must come after all required ones")
			reported = true
		}
	}
}

// Omittable reports whether the argument can be left out of the call: it is
// optional, has no fallback and is not a constant.
func Omittable(arg CallArg) bool {
	return arg.Optional && arg.Fallback == nil && arg.From != SourceConst
}

func validateAudit(a *AuditDirective, verrs *ValidationErrors) {
	if a.ResourceIDExpr != "" {
		if _, err := expr.Compile(a.ResourceIDExpr); err != nil {
			verrs.Add("service.audit.resourceIdExpr", err.Error())
		}
	}
	if a.AfterExpr != "" {
		if _, err := expr.Compile(a.AfterExpr); err != nil {
			verrs.Add("service.audit.afterExpr", err.Error())
		}
	}
}
