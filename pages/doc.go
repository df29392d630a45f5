// Package pages is the default HTML front end of the account console.
//
// [Renderer] parses the embedded templates once and hands out one [Builder]
// per request through [Renderer.Factory]. It also implements
// goAccount.ErrorPager. Messages are looked up in YAML catalogs (English and
// German) and formatted with golang.org/x/text/message; English is the
// fallback for missing keys and unmatched languages.
package pages
